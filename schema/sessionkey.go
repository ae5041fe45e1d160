package schema

import (
	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/xchain/internal/wire"
)

// CategoryInitSessionKey registers a session key derived from a DID.
const CategoryInitSessionKey = "INIT_SESSION_KEY"

type InitSessionKey struct {
	KeyIndex   uint32 `json:"keyIndex"`
	KeyAddress string `json:"keyAddress"`
}

// InitSessionKeySchema returns the INIT_SESSION_KEY schema.
func InitSessionKeySchema() Schema {
	return typed[InitSessionKey, *InitSessionKey]{category: CategoryInitSessionKey, unmarshal: unmarshalInitSessionKey}
}

func (m *InitSessionKey) validate(category string) error {
	if m.KeyAddress == "" {
		return invalid(category, "keyAddress is required")
	}
	return nil
}

func (m *InitSessionKey) marshal() []byte {
	var b []byte
	b = wire.AppendVarint(b, 1, uint64(m.KeyIndex))
	b = wire.AppendString(b, 2, m.KeyAddress)
	return b
}

func unmarshalInitSessionKey(b []byte) (InitSessionKey, error) {
	var m InitSessionKey
	err := wire.Walk(b, CategoryInitSessionKey, func(num protowire.Number, typ protowire.Type, r *wire.Reader) error {
		var err error
		switch num {
		case 1:
			var v uint64
			v, err = r.Varint(num, typ)
			m.KeyIndex = uint32(v)
		case 2:
			m.KeyAddress, err = r.String(num, typ)
		default:
			err = r.Skip(num, typ)
		}
		return err
	})
	return m, err
}
