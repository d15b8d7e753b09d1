// Package graph holds the in-memory parameter graph that a sweep operates on:
// nodes owning typed parameters, their configured ranges, and the live values
// that get handed to a renderer.
package graph

import (
	"errors"
	"fmt"
)

// ErrUnsupportedKind is returned when a parameter kind has no sampling or
// serialization rule.
var ErrUnsupportedKind = errors.New("unsupported parameter kind")

// Kind is the closed set of parameter types a node can expose.
type Kind int

const (
	KindScalar Kind = iota
	KindInteger
	KindVector3
	KindColor
)

// Host socket type names, as written in the setup and min/max files.
const (
	kindNameScalar  = "VALUE"
	kindNameInteger = "INT"
	kindNameVector3 = "VECTOR"
	kindNameColor   = "RGBA"
)

// String returns the host socket type name for the kind.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return kindNameScalar
	case KindInteger:
		return kindNameInteger
	case KindVector3:
		return kindNameVector3
	case KindColor:
		return kindNameColor
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k >= KindScalar && k <= KindColor
}

// Channels returns the number of independently sampled channels: 1 for
// scalar kinds, 3 for vectors and colors.
func (k Kind) Channels() int {
	if k == KindVector3 || k == KindColor {
		return 3
	}
	return 1
}

// IsVector reports whether the kind has per-channel enable flags.
func (k Kind) IsVector() bool {
	return k.Channels() == 3
}

// ParseKind maps a host socket type name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case kindNameScalar:
		return KindScalar, nil
	case kindNameInteger:
		return KindInteger, nil
	case kindNameVector3:
		return KindVector3, nil
	case kindNameColor:
		return KindColor, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
