package types

import (
	"fmt"
	"strings"
)

// Address is an opaque, unique account identity. fundme never interprets it
// beyond equality, so any scheme (hex account, user id, wallet URI) works.
type Address string

// ParseAddress trims s and rejects empty identities.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("address: empty")
	}
	return Address(s), nil
}

// String returns the identity as a string.
func (a Address) String() string { return string(a) }

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a == "" }

// Strings converts a list of addresses for storage encodings.
func Strings(addrs []Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = string(a)
	}
	return out
}

// Addresses is the inverse of Strings.
func Addresses(ss []string) []Address {
	out := make([]Address, len(ss))
	for i, s := range ss {
		out[i] = Address(s)
	}
	return out
}
