// Package router maps request URL paths to served repositories by longest
// path-boundary prefix.
package router

import (
	"strings"
	"sync/atomic"

	"github.com/emirpasic/gods/maps/treemap"
)

// Router resolves paths against an immutable prefix mapping. Replace swaps
// the whole mapping, so concurrent readers always see a consistent one.
type Router[T any] struct {
	m atomic.Pointer[treemap.Map]
}

func New[T any](routes map[string]T) *Router[T] {
	r := &Router[T]{}
	r.Replace(routes)
	return r
}

// Replace installs a new mapping built from routes.
func (r *Router[T]) Replace(routes map[string]T) {
	m := treemap.NewWithStringComparator()
	for prefix, v := range routes {
		m.Put(normalizeDir(prefix), v)
	}
	r.m.Store(m)
}

// Resolve returns the registered prefix (normalized, with leading and
// trailing slash) that is the longest boundary prefix of p.
func (r *Router[T]) Resolve(p string) (prefix string, value T, ok bool) {
	m := r.m.Load()
	key := normalizeDir(p)
	for {
		k, v := m.Floor(key)
		if k == nil {
			return "", value, false
		}
		candidate := k.(string)
		if strings.HasPrefix(key, candidate) {
			return candidate, v.(T), true
		}
		// Every boundary prefix of key that sorts before candidate is also a
		// prefix of candidate, so continue below their shared directory.
		key = commonDir(candidate, key)
		if key == "" {
			return "", value, false
		}
	}
}

// Prefixes lists the registered prefixes in order.
func (r *Router[T]) Prefixes() []string {
	keys := r.m.Load().Keys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.(string))
	}
	return out
}

func (r *Router[T]) Len() int {
	return r.m.Load().Size()
}

// normalizeDir turns p into "/a/b/" form; the root becomes "/".
func normalizeDir(p string) string {
	var b strings.Builder
	b.WriteByte('/')
	for part := range strings.SplitSeq(p, "/") {
		if part == "" || part == "." {
			continue
		}
		b.WriteString(part)
		b.WriteByte('/')
	}
	return b.String()
}

// commonDir returns the longest "/.../" directory shared by a and b,
// excluding a itself, or "" when only the root would remain and a is the
// root.
func commonDir(a, b string) string {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	// Back up to the last slash inside the shared part.
	last := strings.LastIndexByte(a[:i], '/')
	if last < 0 {
		return ""
	}
	dir := a[:last+1]
	if dir == a {
		return ""
	}
	return dir
}
