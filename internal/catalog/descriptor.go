package catalog

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// Param is one source-specific parameter. Parameters keep the order they
// were declared in, which is part of the descriptor's identity.
type Param struct {
	Key   string
	Value string
}

// Descriptor identifies what to fetch from where. Field, Path and Params are
// optional; an absent value is distinct from a present empty one.
type Descriptor struct {
	Source string
	Symbol string
	Field  *string
	Path   *string
	Params []Param
}

// StrPtr is a convenience for building descriptors with optional fields.
func StrPtr(s string) *string { return &s }

// Equal reports exact identity: every component matches, including the
// presence or absence of the optional ones.
func (d Descriptor) Equal(o Descriptor) bool {
	if d.Source != o.Source || d.Symbol != o.Symbol {
		return false
	}
	if !eqOpt(d.Field, o.Field) || !eqOpt(d.Path, o.Path) {
		return false
	}
	if (d.Params == nil) != (o.Params == nil) || len(d.Params) != len(o.Params) {
		return false
	}
	for i := range d.Params {
		if d.Params[i] != o.Params[i] {
			return false
		}
	}
	return true
}

func eqOpt(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// Fingerprint derives the cache key base for the descriptor. Every component
// is written length-prefixed with an explicit presence flag, so no two
// distinct descriptors share a fingerprint regardless of what characters
// their fields contain.
func (d Descriptor) Fingerprint() string {
	h := sha256.New()
	writeStr := func(s string) {
		var n [binary.MaxVarintLen64]byte
		h.Write(n[:binary.PutUvarint(n[:], uint64(len(s)))])
		h.Write([]byte(s))
	}
	writeOpt := func(s *string) {
		if s == nil {
			h.Write([]byte{0})
			return
		}
		h.Write([]byte{1})
		writeStr(*s)
	}
	writeStr(d.Source)
	writeStr(d.Symbol)
	writeOpt(d.Field)
	writeOpt(d.Path)
	if d.Params == nil {
		h.Write([]byte{0})
	} else {
		h.Write([]byte{1})
		var n [binary.MaxVarintLen64]byte
		h.Write(n[:binary.PutUvarint(n[:], uint64(len(d.Params)))])
		for _, p := range d.Params {
			writeStr(p.Key)
			writeStr(p.Value)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// String renders a human-readable identity for logs and errors.
func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteString(d.Source)
	b.WriteByte('/')
	b.WriteString(d.Symbol)
	if d.Field != nil {
		b.WriteByte(':')
		b.WriteString(*d.Field)
	}
	if d.Path != nil {
		b.WriteString(" path=")
		b.WriteString(*d.Path)
	}
	return b.String()
}

// Resolved pairs a logical name with its descriptor, preserving request order
// when produced in batches.
type Resolved struct {
	Name       string
	Descriptor Descriptor
}
