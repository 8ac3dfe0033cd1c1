package svn

import (
	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

// Tuple walks the elements of a decoded list. Optional elements are encoded
// as a list of zero or one item; trailing elements that older clients omit
// read as absent.
type Tuple struct {
	items []Item
	pos   int
}

func NewTuple(items []Item) *Tuple {
	return &Tuple{items: items}
}

func (t *Tuple) Len() int { return len(t.items) }

// More reports whether unread elements remain.
func (t *Tuple) More() bool { return t.pos < len(t.items) }

func (t *Tuple) next(kind ItemKind) (Item, error) {
	if t.pos >= len(t.items) {
		return Item{}, svnerr.Malformed("missing %s at position %d", kind, t.pos)
	}
	it := t.items[t.pos]
	if it.Kind != kind {
		return Item{}, svnerr.Malformed("expected %s at position %d, got %s", kind, t.pos, it.Kind)
	}
	t.pos++
	return it, nil
}

func (t *Tuple) Word() (string, error) {
	it, err := t.next(ItemWord)
	return it.Word, err
}

func (t *Tuple) Number() (uint64, error) {
	it, err := t.next(ItemNumber)
	return it.Number, err
}

func (t *Tuple) Text() (string, error) {
	it, err := t.next(ItemString)
	return string(it.Bytes), err
}

func (t *Tuple) Bytes() ([]byte, error) {
	it, err := t.next(ItemString)
	return it.Bytes, err
}

func (t *Tuple) List() (*Tuple, error) {
	it, err := t.next(ItemList)
	if err != nil {
		return nil, err
	}
	return NewTuple(it.List), nil
}

// Bool reads a true/false word.
func (t *Tuple) Bool() (bool, error) {
	w, err := t.Word()
	if err != nil {
		return false, err
	}
	switch w {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, svnerr.Malformed("expected boolean, got %q", w)
	}
}

// BoolOr reads a boolean, or returns def when the tuple is exhausted.
func (t *Tuple) BoolOr(def bool) (bool, error) {
	if !t.More() {
		return def, nil
	}
	return t.Bool()
}

// optional unwraps an "( [ item ] )" element.
func (t *Tuple) optional(kind ItemKind) (Item, bool, error) {
	if !t.More() {
		return Item{}, false, nil
	}
	inner, err := t.List()
	if err != nil {
		return Item{}, false, err
	}
	if !inner.More() {
		return Item{}, false, nil
	}
	it, err := inner.next(kind)
	return it, err == nil, err
}

func (t *Tuple) OptNumber() (uint64, bool, error) {
	it, ok, err := t.optional(ItemNumber)
	return it.Number, ok, err
}

func (t *Tuple) OptText() (string, bool, error) {
	it, ok, err := t.optional(ItemString)
	return string(it.Bytes), ok, err
}

func (t *Tuple) OptWord() (string, bool, error) {
	it, ok, err := t.optional(ItemWord)
	return it.Word, ok, err
}

// Words reads a list of words.
func (t *Tuple) Words() ([]string, error) {
	inner, err := t.List()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, inner.Len())
	for inner.More() {
		w, err := inner.Word()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// Texts reads a list of strings.
func (t *Tuple) Texts() ([]string, error) {
	inner, err := t.List()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, inner.Len())
	for inner.More() {
		s, err := inner.Text()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
