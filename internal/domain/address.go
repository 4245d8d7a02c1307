// Package domain defines core data structures shared by the wallet core and the treasury backend.
package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address chain account identifier, lower-cased for storage and comparison.
type Address string

// NewAddress normalizes a raw account string.
func NewAddress(raw string) Address {
	return Address(strings.ToLower(strings.TrimSpace(raw)))
}

// IsValidAddress reports whether raw is a syntactically valid hex account address.
func IsValidAddress(raw string) bool {
	return common.IsHexAddress(strings.TrimSpace(raw))
}

// Equal compares two addresses ignoring case.
func (a Address) Equal(other Address) bool {
	return strings.EqualFold(string(a), string(other))
}

// Valid reports whether the address is syntactically valid.
func (a Address) Valid() bool {
	return IsValidAddress(string(a))
}

// Common converts the address into its go-ethereum representation.
func (a Address) Common() common.Address {
	return common.HexToAddress(string(a))
}

// String returns the normalized address.
func (a Address) String() string {
	return string(a)
}

// Short returns the abbreviated form used in status lines, e.g. 0x1234...abcd.
func (a Address) Short(chars int) string {
	s := string(a)
	if chars <= 0 || len(s) <= 2+2*chars {
		return s
	}
	return s[:chars+2] + "..." + s[len(s)-chars:]
}
