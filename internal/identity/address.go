package identity

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress validates a user-supplied account address and returns it in
// canonical form. Input must be 0x-prefixed and 40 hex digits. All-lowercase
// and all-uppercase hex are accepted as-is; mixed case must match the
// EIP-55 checksum exactly.
func ParseAddress(raw string) (common.Address, error) {
	s := strings.TrimSpace(raw)
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return common.Address{}, ErrInvalidAddress
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, ErrInvalidAddress
	}
	addr := common.HexToAddress(s)

	body := s[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if addr.Hex()[2:] != body {
			return common.Address{}, ErrInvalidAddress
		}
	}
	return addr, nil
}
