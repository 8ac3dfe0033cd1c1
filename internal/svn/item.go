// Package svn implements the ra_svn wire encoding: words, numbers,
// length-prefixed strings and parenthesised lists, each item followed by
// whitespace.
package svn

import (
	"fmt"
	"strings"
)

type ItemKind uint8

const (
	ItemWord ItemKind = iota + 1
	ItemNumber
	ItemString
	ItemList
)

func (k ItemKind) String() string {
	switch k {
	case ItemWord:
		return "word"
	case ItemNumber:
		return "number"
	case ItemString:
		return "string"
	case ItemList:
		return "list"
	default:
		return "invalid"
	}
}

// Item is one decoded protocol element. Only the field matching Kind is set.
type Item struct {
	Kind   ItemKind
	Word   string
	Number uint64
	Bytes  []byte
	List   []Item
}

func Word(w string) Item      { return Item{Kind: ItemWord, Word: w} }
func Number(n uint64) Item    { return Item{Kind: ItemNumber, Number: n} }
func String(s string) Item    { return Item{Kind: ItemString, Bytes: []byte(s)} }
func List(items ...Item) Item { return Item{Kind: ItemList, List: items} }

// String renders the item in wire syntax, used for logging.
func (it Item) String() string {
	var b strings.Builder
	it.format(&b)
	return strings.TrimSuffix(b.String(), " ")
}

func (it Item) format(b *strings.Builder) {
	switch it.Kind {
	case ItemWord:
		b.WriteString(it.Word)
	case ItemNumber:
		fmt.Fprintf(b, "%d", it.Number)
	case ItemString:
		fmt.Fprintf(b, "%d:%s", len(it.Bytes), it.Bytes)
	case ItemList:
		b.WriteString("( ")
		for _, child := range it.List {
			child.format(b)
		}
		b.WriteString(")")
	}
	b.WriteByte(' ')
}
