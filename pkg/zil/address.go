package zil

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/Zilliqa/gozilliqa-sdk/bech32"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
)

const ZeroAddress = "0x0000000000000000000000000000000000000000"

// NormalizeAddress accepts a bech32 (zil1...) or hex address, with or without
// the 0x prefix, and returns the lowercase 0x-prefixed hex form.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if strings.HasPrefix(strings.ToLower(address), "zil1") {
		hexAddr, err := bech32.FromBech32Addr(address)
		if err != nil {
			return "", ErrInvalidAddress
		}
		address = hexAddr
	}

	address = strings.TrimPrefix(strings.ToLower(address), "0x")
	if len(address) != 40 {
		return "", ErrInvalidAddress
	}
	if _, err := hex.DecodeString(address); err != nil {
		return "", ErrInvalidAddress
	}

	return "0x" + address, nil
}

func ToBech32(address string) string {
	bech32Addr, err := bech32.ToBech32Address(address)
	if err != nil {
		return ""
	}
	return bech32Addr
}
