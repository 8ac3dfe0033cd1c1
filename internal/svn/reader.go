package svn

import (
	"bufio"
	"errors"
	"io"
	"math"

	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

const (
	DefaultMaxString = 16 << 20
	DefaultMaxDepth  = 64
)

// Reader decodes items from a client connection.
type Reader struct {
	r         *bufio.Reader
	maxString int
	maxDepth  int
}

type ReaderOption func(*Reader)

// WithLimits bounds the size of a single string item and the nesting depth
// of lists.
func WithLimits(maxString, maxDepth int) ReaderOption {
	return func(r *Reader) {
		r.maxString = maxString
		r.maxDepth = maxDepth
	}
}

func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	rd := &Reader{
		r:         bufio.NewReader(r),
		maxString: DefaultMaxString,
		maxDepth:  DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// ReadItem reads the next item. It returns io.EOF when the stream ends
// between items.
func (r *Reader) ReadItem() (Item, error) {
	c, err := r.skipSpace()
	if err != nil {
		return Item{}, err
	}
	return r.readItem(c, 0)
}

// ReadTuple reads the next item and requires it to be a list.
func (r *Reader) ReadTuple() (*Tuple, error) {
	it, err := r.ReadItem()
	if err != nil {
		return nil, err
	}
	if it.Kind != ItemList {
		return nil, svnerr.Malformed("expected list, got %s", it.Kind)
	}
	return NewTuple(it.List), nil
}

func (r *Reader) skipSpace() (byte, error) {
	for {
		c, err := r.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if !isSpace(c) {
			return c, nil
		}
	}
}

func (r *Reader) readItem(c byte, depth int) (Item, error) {
	switch {
	case c == '(':
		return r.readList(depth + 1)
	case isDigit(c):
		return r.readNumberOrString(c)
	case isAlpha(c):
		return r.readWord(c)
	default:
		return Item{}, svnerr.Malformed("unexpected byte %q", c)
	}
}

func (r *Reader) readList(depth int) (Item, error) {
	if depth > r.maxDepth {
		return Item{}, svnerr.Malformed("list nesting exceeds %d", r.maxDepth)
	}
	items := []Item{}
	for {
		c, err := r.skipSpace()
		if err != nil {
			return Item{}, unexpected(err)
		}
		if c == ')' {
			return Item{Kind: ItemList, List: items}, nil
		}
		it, err := r.readItem(c, depth)
		if err != nil {
			return Item{}, unexpected(err)
		}
		items = append(items, it)
	}
}

func (r *Reader) readNumberOrString(first byte) (Item, error) {
	n := uint64(first - '0')
	for {
		c, err := r.r.ReadByte()
		if err != nil {
			return Item{}, unexpected(err)
		}
		switch {
		case isDigit(c):
			d := uint64(c - '0')
			if n > (math.MaxUint64-d)/10 {
				return Item{}, svnerr.Malformed("number overflows")
			}
			n = n*10 + d
		case c == ':':
			return r.readString(n)
		case isSpace(c):
			return Item{Kind: ItemNumber, Number: n}, nil
		default:
			return Item{}, svnerr.Malformed("unexpected byte %q in number", c)
		}
	}
}

func (r *Reader) readString(n uint64) (Item, error) {
	if n > uint64(r.maxString) {
		return Item{}, svnerr.Malformed("string of %d bytes exceeds limit %d", n, r.maxString)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return Item{}, unexpected(err)
	}
	c, err := r.r.ReadByte()
	if err != nil {
		return Item{}, unexpected(err)
	}
	if !isSpace(c) {
		return Item{}, svnerr.Malformed("string not followed by whitespace")
	}
	return Item{Kind: ItemString, Bytes: buf}, nil
}

func (r *Reader) readWord(first byte) (Item, error) {
	word := []byte{first}
	for {
		c, err := r.r.ReadByte()
		if err != nil {
			return Item{}, unexpected(err)
		}
		switch {
		case isAlpha(c) || isDigit(c) || c == '-':
			if len(word) >= 256 {
				return Item{}, svnerr.Malformed("word too long")
			}
			word = append(word, c)
		case isSpace(c):
			return Item{Kind: ItemWord, Word: string(word)}, nil
		default:
			return Item{}, svnerr.Malformed("unexpected byte %q in word", c)
		}
	}
}

// unexpected turns an end of stream in the middle of an item into a
// malformed-data error.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return svnerr.Malformed("connection closed in the middle of an item")
	}
	return err
}

func isSpace(c byte) bool { return c == ' ' || c == '\n' || c == '\r' || c == '\t' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
