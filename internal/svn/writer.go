package svn

import (
	"bufio"
	"io"
	"strconv"
	"time"

	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

// DateFormat is the timestamp layout of svn:date and dirent dates.
const DateFormat = "2006-01-02T15:04:05.000000Z"

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateFormat)
}

// Writer encodes items. Methods chain and the first write error sticks;
// it is reported by Flush and Err.
type Writer struct {
	w   *bufio.Writer
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) raw(s string) *Writer {
	if w.err == nil {
		_, w.err = w.w.WriteString(s)
	}
	return w
}

func (w *Writer) ListBegin() *Writer { return w.raw("( ") }
func (w *Writer) ListEnd() *Writer   { return w.raw(") ") }

func (w *Writer) Word(word string) *Writer {
	return w.raw(word).raw(" ")
}

func (w *Writer) Number(n uint64) *Writer {
	return w.raw(strconv.FormatUint(n, 10)).raw(" ")
}

func (w *Writer) Int(n int) *Writer {
	return w.Number(uint64(n))
}

func (w *Writer) Text(s string) *Writer {
	return w.raw(strconv.Itoa(len(s))).raw(":").raw(s).raw(" ")
}

func (w *Writer) Bytes(b []byte) *Writer {
	w.raw(strconv.Itoa(len(b))).raw(":")
	if w.err == nil {
		_, w.err = w.w.Write(b)
	}
	return w.raw(" ")
}

func (w *Writer) Bool(b bool) *Writer {
	if b {
		return w.Word("true")
	}
	return w.Word("false")
}

// OptText writes "( s )", or "( )" when ok is false.
func (w *Writer) OptText(s string, ok bool) *Writer {
	w.ListBegin()
	if ok {
		w.Text(s)
	}
	return w.ListEnd()
}

func (w *Writer) Item(it Item) *Writer {
	switch it.Kind {
	case ItemWord:
		return w.Word(it.Word)
	case ItemNumber:
		return w.Number(it.Number)
	case ItemString:
		return w.Bytes(it.Bytes)
	case ItemList:
		w.ListBegin()
		for _, child := range it.List {
			w.Item(child)
		}
		return w.ListEnd()
	}
	return w
}

func (w *Writer) Err() error { return w.err }

func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}

// Success writes "( success ( ... ) )" with body filling the inner list,
// then flushes.
func (w *Writer) Success(body func(*Writer)) error {
	w.ListBegin().Word("success").ListBegin()
	if body != nil {
		body(w)
	}
	w.ListEnd().ListEnd()
	return w.Flush()
}

// Failure writes a command failure carrying the error chain of err, then
// flushes.
func (w *Writer) Failure(err error) error {
	w.ListBegin().Word("failure").ListBegin()
	w.ListBegin().
		Int(svnerr.CodeOf(err)).
		Text(err.Error()).
		Text("").
		Number(0).
		ListEnd()
	w.ListEnd().ListEnd()
	return w.Flush()
}

// AuthFailure writes the short failure form used during authentication.
func (w *Writer) AuthFailure(msg string) error {
	w.ListBegin().Word("failure").ListBegin().Text(msg).ListEnd().ListEnd()
	return w.Flush()
}
