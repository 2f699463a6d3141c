// Package lot defines the lot data model shared by the registry, its backends and
// the boundary formats (flat inputs, nested trees).
package lot

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// IDSize is the width of a lot identifier in bytes.
const IDSize = 32

// ID is the fixed-width identifier of a lot, derived from its label.
type ID [IDSize]byte

// Zero is the sentinel ID. As a parent it marks a root lot, as a chain link it
// terminates the chain.
var Zero ID

// ErrInvalidID is returned when an ID string cannot be parsed.
var ErrInvalidID = errors.New("lottrace: invalid lot id")

// DeriveID returns the Keccak-256 hash of the UTF-8 bytes of label.
// The empty label hashes like any other string; callers that treat "" as
// "no parent" must check for it before deriving.
func DeriveID(label string) ID {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(label))
	var id ID
	h.Sum(id[:0])
	return id
}

// ParseID parses the 0x-prefixed hex form produced by ID.String.
func ParseID(s string) (ID, error) {
	var id ID
	hexPart, ok := strings.CutPrefix(s, "0x")
	if !ok || len(hexPart) != IDSize*2 {
		return id, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	if _, err := hex.Decode(id[:], []byte(hexPart)); err != nil {
		return id, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}

// IsZero reports whether id is the sentinel.
func (id ID) IsZero() bool {
	return id == Zero
}

// String returns 0x followed by 64 lowercase hex digits.
func (id ID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Hex returns the hex digits without the 0x prefix.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParentID derives the parent identifier from a parent label. The empty label
// means "no parent" and yields Zero.
func ParentID(parentLabel string) ID {
	if parentLabel == "" {
		return Zero
	}
	return DeriveID(parentLabel)
}

// Resolve turns a reference that is either a 0x-prefixed ID or a lot label
// into an ID.
func Resolve(ref string) ID {
	if id, err := ParseID(ref); err == nil {
		return id
	}
	return DeriveID(ref)
}
