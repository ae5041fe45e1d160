package address

import (
	"strings"

	"github.com/cosmos/cosmos-sdk/types/bech32"

	"xdao.co/xchain/model"
)

// PushPrefix is the bech32 human-readable part of Push chain addresses.
const PushPrefix = "push"

// EVMToPush converts a 0x hex address into its bech32 Push form.
func EVMToPush(addr string) (string, error) {
	raw, err := ParseEVM(addr)
	if err != nil {
		return "", err
	}
	out, err := bech32.ConvertAndEncode(PushPrefix, raw)
	if err != nil {
		return "", model.WrapError(model.KindAddressFormat, "bech32-encode", "encode push address", err)
	}
	return out, nil
}

// PushToEVM converts a bech32 Push address into its EIP-55 checksummed hex form.
func PushToEVM(addr string) (string, error) {
	raw, err := ParsePush(addr)
	if err != nil {
		return "", err
	}
	return checksumHex(raw), nil
}

// ParsePush decodes a bech32 Push address into its 20 raw bytes.
func ParsePush(addr string) ([]byte, error) {
	if addr == "" {
		return nil, model.AddressFormatError("empty", "push address is empty")
	}
	hrp, raw, err := bech32.DecodeAndConvert(addr)
	if err != nil {
		return nil, model.WrapError(model.KindAddressFormat, "bad-bech32", "push address is not valid bech32", err)
	}
	if hrp != PushPrefix {
		return nil, model.AddressFormatError("bad-prefix", "push address must use the \""+PushPrefix+"\" prefix, got \""+hrp+"\"")
	}
	if len(raw) != AccountSize {
		return nil, model.AddressFormatError("bad-length", "push address must encode 20 bytes")
	}
	return raw, nil
}

// IsPushAddress reports whether addr looks like bech32 Push text. It only
// checks the prefix; use ParsePush for full validation.
func IsPushAddress(addr string) bool {
	return strings.HasPrefix(strings.ToLower(addr), PushPrefix+"1")
}
