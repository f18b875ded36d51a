// Package slot implements the storage address calculus: linear offsets for
// struct members and keccak-derived locations for collection elements. Both
// operations are pure; changing either breaks every subsequent read.
package slot

import (
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// WordLen is the length of an absolute slot in hex characters.
const WordLen = 64

// ValidateWord checks that s is a 64-character lowercase hex word.
func ValidateWord(s string) error {
	if len(s) != WordLen {
		return fmt.Errorf("slot: invalid word length %d, want %d", len(s), WordLen)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("slot: invalid hex character %q at index %d", c, i)
		}
	}
	return nil
}

// ChildSlot computes the absolute slot of a struct member: parent + relative,
// modulo 2^256. Both the parent slot and the result are 64 lowercase hex
// characters, big-endian, no 0x prefix. The relative slot is a non-negative
// decimal string as recorded in the type directory.
func ChildSlot(parent, relative string) (string, error) {
	if err := ValidateWord(parent); err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(parent)
	if err != nil {
		return "", fmt.Errorf("slot: decoding parent slot: %w", err)
	}
	base := new(uint256.Int).SetBytes(raw)
	rel, err := uint256.FromDecimal(relative)
	if err != nil {
		return "", fmt.Errorf("slot: parsing relative slot %q: %w", relative, err)
	}
	sum := new(uint256.Int).Add(base, rel)
	b := sum.Bytes32()
	return hex.EncodeToString(b[:]), nil
}

// ElementSlot computes the absolute slot of a collection element:
// keccak256(key || parentSlot), where key is the element key's byte form (the
// decimal index for arrays, the canonical key string for mappings) and
// parentSlot is the raw 32-byte parent slot. The key-then-slot order is the
// target compiler's convention and must never be reversed.
func ElementSlot(parent, key string) (string, error) {
	if err := ValidateWord(parent); err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(parent)
	if err != nil {
		return "", fmt.Errorf("slot: decoding parent slot: %w", err)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(key))
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Pad32 renders a small integer as a 64-hex-character word. Convenience for
// seeding and tests.
func Pad32(n uint64) string {
	b := uint256.NewInt(n).Bytes32()
	return hex.EncodeToString(b[:])
}
