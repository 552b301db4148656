package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// IndexKind distinguishes how a resource address is indexed.
type IndexKind int

const (
	// NoIndex addresses a single, non-expanded resource.
	NoIndex IndexKind = iota
	// IntIndex addresses one instance of a counted resource, e.g. web.server[2].
	IntIndex
	// StringIndex addresses one instance of a keyed resource, e.g. dns.record["www"].
	StringIndex
)

// Address identifies a resource within a snapshot: type, name and an
// optional index. Index variants are resolved once during graph expansion;
// the zero IndexKind means the resource is not expanded. Address is
// comparable and safe to use as a map key.
type Address struct {
	Type string
	Name string
	Kind IndexKind
	Int  int
	Key  string
}

// Addr builds a non-indexed address.
func Addr(typ, name string) Address {
	return Address{Type: typ, Name: name}
}

// Indexed returns a copy of a with an ordinal index.
func (a Address) Indexed(i int) Address {
	a.Kind = IntIndex
	a.Int = i
	a.Key = ""
	return a
}

// Keyed returns a copy of a with a string key index.
func (a Address) Keyed(k string) Address {
	a.Kind = StringIndex
	a.Key = k
	a.Int = 0
	return a
}

// String renders the canonical form: type.name, type.name[3] or
// type.name["key"].
func (a Address) String() string {
	base := a.Type + "." + a.Name
	switch a.Kind {
	case IntIndex:
		return fmt.Sprintf("%s[%d]", base, a.Int)
	case StringIndex:
		return fmt.Sprintf("%s[%q]", base, a.Key)
	default:
		return base
	}
}

// ParseAddress parses the canonical string form of an address.
func ParseAddress(s string) (Address, error) {
	var addr Address

	rest := s
	if i := strings.IndexByte(s, '['); i >= 0 {
		if !strings.HasSuffix(s, "]") {
			return addr, fmt.Errorf("invalid address %q: unterminated index", s)
		}
		idx := s[i+1 : len(s)-1]
		rest = s[:i]
		if strings.HasPrefix(idx, `"`) {
			key, err := strconv.Unquote(idx)
			if err != nil {
				return addr, fmt.Errorf("invalid address %q: bad string key: %w", s, err)
			}
			addr.Kind = StringIndex
			addr.Key = key
		} else {
			n, err := strconv.Atoi(idx)
			if err != nil || n < 0 {
				return addr, fmt.Errorf("invalid address %q: bad ordinal index %q", s, idx)
			}
			addr.Kind = IntIndex
			addr.Int = n
		}
	}

	dot := strings.LastIndexByte(rest, '.')
	if dot <= 0 || dot == len(rest)-1 {
		return addr, fmt.Errorf("invalid address %q: expected format type.name", s)
	}
	addr.Type = rest[:dot]
	addr.Name = rest[dot+1:]
	return addr, nil
}

// MarshalJSON renders the address in its canonical string form, matching the
// on-disk state format.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
