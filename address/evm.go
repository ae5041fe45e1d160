package address

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	"xdao.co/xchain/model"
)

// AccountSize is the byte length of EVM and Push account addresses.
const AccountSize = 20

// ChecksumEVM validates addr and returns its EIP-55 checksummed form.
//
// All-lowercase and all-uppercase inputs are accepted as unchecksummed;
// mixed-case input must already carry a valid checksum.
func ChecksumEVM(addr string) (string, error) {
	raw, err := ParseEVM(addr)
	if err != nil {
		return "", err
	}
	return checksumHex(raw), nil
}

// ParseEVM decodes a 0x-prefixed hex address into its 20 raw bytes.
func ParseEVM(addr string) ([]byte, error) {
	body, ok := trimHexPrefix(addr)
	if !ok {
		return nil, model.AddressFormatError("missing-hex-prefix", "evm address must start with 0x")
	}
	if len(body) != 2*AccountSize {
		return nil, model.AddressFormatError("bad-length", "evm address must be 20 bytes (40 hex chars)")
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return nil, model.AddressFormatError("bad-hex", "evm address is not valid hex")
	}
	if isMixedCase(body) && checksumHex(raw)[2:] != body {
		return nil, model.AddressFormatError("bad-checksum", "evm address has an invalid EIP-55 checksum")
	}
	return raw, nil
}

// IsEVMAddress reports whether addr parses as an EVM address.
func IsEVMAddress(addr string) bool {
	_, err := ParseEVM(addr)
	return err == nil
}

func checksumHex(raw []byte) string {
	lower := []byte(hex.EncodeToString(raw))
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(lower)
	digest := h.Sum(nil)

	for i, c := range lower {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble > 7 {
			lower[i] = c - ('a' - 'A')
		}
	}
	return "0x" + string(lower)
}

func trimHexPrefix(s string) (string, bool) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:], true
	}
	return s, false
}

func isMixedCase(s string) bool {
	return strings.ToLower(s) != s && strings.ToUpper(s) != s
}
