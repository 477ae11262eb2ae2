package id

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrAddressLength   = errors.New("address must be 42 characters including the 0x prefix")
	ErrAddressHex      = errors.New("address contains non-hex characters")
	ErrAddressChecksum = errors.New("address checksum does not match")
)

// ParseAddress validates a literal 0x address. Mixed-case input must carry a
// valid EIP-55 checksum; all-lower and all-upper input is accepted as is.
func ParseAddress(input string) (common.Address, error) {
	clean := strings.TrimSpace(input)
	if len(clean) != 42 || !strings.HasPrefix(strings.ToLower(clean), "0x") {
		return common.Address{}, ErrAddressLength
	}
	if !common.IsHexAddress(clean) {
		return common.Address{}, ErrAddressHex
	}
	addr := common.HexToAddress(clean)
	body := clean[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if addr.Hex() != "0x"+body {
			return common.Address{}, ErrAddressChecksum
		}
	}
	return addr, nil
}

// LooksLikeName reports whether input should be treated as an ENS-style name.
func LooksLikeName(input string) bool {
	clean := strings.TrimSpace(input)
	return !strings.HasPrefix(strings.ToLower(clean), "0x") && strings.Contains(clean, ".")
}
