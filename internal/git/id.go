package git

import (
	"encoding/hex"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

// ObjectID identifies a blob, tree or commit by its content hash.
//
// The raw hash bytes are held in a string so values are immutable and never
// alias buffers owned by the object store. The zero value means "absent".
type ObjectID struct {
	raw string
}

// NewObjectID copies b into a new identity.
func NewObjectID(b []byte) ObjectID {
	return ObjectID{raw: string(b)}
}

func fromHash(h plumbing.Hash) ObjectID {
	if h.IsZero() {
		return ObjectID{}
	}
	return NewObjectID(h[:])
}

// ParseObjectID decodes a hexadecimal hash.
func ParseObjectID(s string) (ObjectID, error) {
	if s == "" {
		return ObjectID{}, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return ObjectID{}, fmt.Errorf("parse object id %q: %w", s, err)
	}
	return NewObjectID(b), nil
}

func (id ObjectID) IsZero() bool { return id.raw == "" }

// Bytes returns a fresh copy of the hash bytes.
func (id ObjectID) Bytes() []byte { return []byte(id.raw) }

func (id ObjectID) String() string { return hex.EncodeToString([]byte(id.raw)) }

func (id ObjectID) hash() plumbing.Hash {
	var h plumbing.Hash
	copy(h[:], id.raw)
	return h
}

func (id ObjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ObjectID) UnmarshalText(text []byte) error {
	parsed, err := ParseObjectID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
