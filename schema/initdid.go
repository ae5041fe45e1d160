package schema

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/xchain/address"
	"xdao.co/xchain/internal/wire"
)

// CategoryInitDID is the identity-init category.
const CategoryInitDID = "INIT_DID"

// EncryptedText is a ciphertext with its key-derivation parameters.
type EncryptedText struct {
	CipherText string `json:"cipherText"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Version    string `json:"version"`
	PreKey     string `json:"preKey"`
}

// InitDID registers a master key and a derived key, with the derived key
// encrypted once per controlling wallet.
//
// WalletToEncDerivedKey is keyed by chain-agnostic wallet address.
type InitDID struct {
	MasterPubKey          string                   `json:"masterPubKey"`
	DerivedKeyIndex       uint32                   `json:"derivedKeyIndex"`
	DerivedPubKey         string                   `json:"derivedPubKey"`
	WalletToEncDerivedKey map[string]EncryptedText `json:"walletToEncDerivedKey"`
}

// InitDIDSchema returns the INIT_DID schema.
func InitDIDSchema() Schema {
	return typed[InitDID, *InitDID]{category: CategoryInitDID, unmarshal: unmarshalInitDID}
}

func (m *InitDID) validate(category string) error {
	if m.MasterPubKey == "" {
		return invalid(category, "masterPubKey is required")
	}
	if m.DerivedPubKey == "" {
		return invalid(category, "derivedPubKey is required")
	}
	if len(m.WalletToEncDerivedKey) == 0 {
		return invalid(category, "walletToEncDerivedKey must have at least one entry")
	}
	for wallet, enc := range m.WalletToEncDerivedKey {
		if _, err := address.ParseChainAgnostic(wallet); err != nil {
			return invalid(category, "walletToEncDerivedKey key %q is not a chain-agnostic address", wallet)
		}
		if enc.CipherText == "" || enc.Nonce == "" {
			return invalid(category, "walletToEncDerivedKey[%q] requires cipherText and nonce", wallet)
		}
	}
	return nil
}

// marshal writes map entries in key order so encoding is deterministic.
func (m *InitDID) marshal() []byte {
	var b []byte
	b = wire.AppendString(b, 1, m.MasterPubKey)
	b = wire.AppendVarint(b, 2, uint64(m.DerivedKeyIndex))
	b = wire.AppendString(b, 3, m.DerivedPubKey)

	keys := make([]string, 0, len(m.WalletToEncDerivedKey))
	for k := range m.WalletToEncDerivedKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var entry []byte
		entry = wire.AppendString(entry, 1, k)
		entry = wire.AppendMessage(entry, 2, m.WalletToEncDerivedKey[k].marshal())
		b = wire.AppendMessage(b, 4, entry)
	}
	return b
}

func (e EncryptedText) marshal() []byte {
	var b []byte
	b = wire.AppendString(b, 1, e.CipherText)
	b = wire.AppendString(b, 2, e.Salt)
	b = wire.AppendString(b, 3, e.Nonce)
	b = wire.AppendString(b, 4, e.Version)
	b = wire.AppendString(b, 5, e.PreKey)
	return b
}

func unmarshalInitDID(b []byte) (InitDID, error) {
	var m InitDID
	err := wire.Walk(b, CategoryInitDID, func(num protowire.Number, typ protowire.Type, r *wire.Reader) error {
		var err error
		switch num {
		case 1:
			m.MasterPubKey, err = r.String(num, typ)
		case 2:
			var v uint64
			v, err = r.Varint(num, typ)
			m.DerivedKeyIndex = uint32(v)
		case 3:
			m.DerivedPubKey, err = r.String(num, typ)
		case 4:
			var raw []byte
			if raw, err = r.Bytes(num, typ); err != nil {
				return err
			}
			var k string
			var v EncryptedText
			if k, v, err = unmarshalWalletEntry(raw); err != nil {
				return err
			}
			if m.WalletToEncDerivedKey == nil {
				m.WalletToEncDerivedKey = map[string]EncryptedText{}
			}
			m.WalletToEncDerivedKey[k] = v
		default:
			err = r.Skip(num, typ)
		}
		return err
	})
	return m, err
}

func unmarshalWalletEntry(b []byte) (string, EncryptedText, error) {
	var key string
	var val EncryptedText
	err := wire.Walk(b, CategoryInitDID+" map entry", func(num protowire.Number, typ protowire.Type, r *wire.Reader) error {
		var err error
		switch num {
		case 1:
			key, err = r.String(num, typ)
		case 2:
			var raw []byte
			if raw, err = r.Bytes(num, typ); err == nil {
				val, err = unmarshalEncryptedText(raw)
			}
		default:
			err = r.Skip(num, typ)
		}
		return err
	})
	return key, val, err
}

func unmarshalEncryptedText(b []byte) (EncryptedText, error) {
	var e EncryptedText
	err := wire.Walk(b, "EncryptedText", func(num protowire.Number, typ protowire.Type, r *wire.Reader) error {
		var err error
		switch num {
		case 1:
			e.CipherText, err = r.String(num, typ)
		case 2:
			e.Salt, err = r.String(num, typ)
		case 3:
			e.Nonce, err = r.String(num, typ)
		case 4:
			e.Version, err = r.String(num, typ)
		case 5:
			e.PreKey, err = r.String(num, typ)
		default:
			err = r.Skip(num, typ)
		}
		return err
	})
	return e, err
}
