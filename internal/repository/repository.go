// Package repository binds one served Git repository: its object store,
// revision translator, cache and read policy.
package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thiagokokada/gitsvn/internal/auth"
	"github.com/thiagokokada/gitsvn/internal/debounce"
	"github.com/thiagokokada/gitsvn/internal/git"
	"github.com/thiagokokada/gitsvn/internal/revision"
)

const DefaultRefreshDelay = 200 * time.Millisecond

type Options struct {
	// Prefix is the URL path the repository is served under.
	Prefix string
	Path   string
	// Branch is the tracked branch, HEAD when empty.
	Branch          string
	UUID            string
	RenameDetection bool
	Access          auth.Access
	// CacheDir holds persisted cache entries; entries are kept in memory
	// when empty.
	CacheDir     string
	FrontSize    int
	RefreshDelay time.Duration
}

type Repository struct {
	prefix     string
	uuid       string
	store      *git.Repository
	cache      revision.CacheStore
	translator *revision.Translator
	access     auth.Access
	log        *slog.Logger

	refreshDelay time.Duration
	mu           sync.Mutex
	refresh      *debounce.Debouncer
}

// Open opens the Git repository at opts.Path and binds its current history.
func Open(ctx context.Context, opts Options) (*Repository, error) {
	store, err := git.Open(opts.Path, git.WithRenameDetection(opts.RenameDetection))
	if err != nil {
		return nil, err
	}
	var cache revision.CacheStore = revision.NewMemoryStore()
	if opts.CacheDir != "" {
		disk, err := revision.NewDiskStore(opts.CacheDir)
		if err != nil {
			return nil, err
		}
		cache = disk
	}
	r := New(store, cache, opts)
	if _, err := r.Refresh(ctx); err != nil {
		return nil, errors.Join(err, r.Close())
	}
	return r, nil
}

// New binds an already opened store. History is not walked until Refresh.
func New(store *git.Repository, cache revision.CacheStore, opts Options) *Repository {
	var topts []revision.Option
	if opts.FrontSize > 0 {
		topts = append(topts, revision.WithFrontSize(opts.FrontSize))
	}
	delay := opts.RefreshDelay
	if delay <= 0 {
		delay = DefaultRefreshDelay
	}
	return &Repository{
		prefix:       opts.Prefix,
		uuid:         opts.UUID,
		store:        store,
		cache:        cache,
		translator:   revision.NewTranslator(store, cache, opts.Branch, topts...),
		access:       opts.Access,
		log:          slog.With(slog.String("repository", opts.Prefix)),
		refreshDelay: delay,
	}
}

func (r *Repository) Prefix() string                   { return r.prefix }
func (r *Repository) Store() *git.Repository           { return r.store }
func (r *Repository) Translator() *revision.Translator { return r.translator }
func (r *Repository) Access() auth.Access              { return r.access }

// UUID returns the configured repository UUID, or one derived from the
// first revision so that every server exporting the same history agrees.
func (r *Repository) UUID() string {
	if r.uuid != "" {
		return r.uuid
	}
	seed := []byte(r.store.Path())
	if c, err := r.translator.Revision(1); err == nil {
		seed = c.ID.Bytes()
	}
	return deriveUUID(seed)
}

func deriveUUID(seed []byte) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, seed).String()
}

func (r *Repository) Refresh(ctx context.Context) (int, error) {
	return r.translator.Refresh(ctx)
}

// Notify signals that branch changed. A change of the tracked branch, or an
// unknown one, schedules a debounced refresh.
func (r *Repository) Notify(branch string) {
	if branch != "" && r.translator.Branch() != "" && branch != r.translator.Branch() {
		return
	}
	r.mu.Lock()
	d := debounce.Ensure(&r.refresh, r.refreshDelay, r.refreshNow)
	r.mu.Unlock()
	d.Trigger()
}

func (r *Repository) refreshNow() {
	latest, err := r.Refresh(context.Background())
	if err != nil {
		r.log.Error("refresh failed", slog.Any("error", err))
		return
	}
	r.log.Debug("refreshed", slog.Int("latest", latest))
}

// Watch feeds filesystem ref updates into Notify until ctx is done.
func (r *Repository) Watch(ctx context.Context) error {
	return git.Watch(ctx, git.GitDir(r.store.Path()), r.Notify)
}

func (r *Repository) Close() error {
	r.mu.Lock()
	if r.refresh != nil {
		r.refresh.Stop()
	}
	r.mu.Unlock()
	if c, ok := r.cache.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
