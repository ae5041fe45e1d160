package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"xdao.co/xchain/model"
)

// TxHash returns the lowercase hex sha256 of the serialized transaction.
// This is the hash the validator network reports for a submitted tx.
func TxHash(tx model.Transaction) string {
	sum := sha256.Sum256(SerializeTx(tx))
	return hex.EncodeToString(sum[:])
}

// BlockHash returns the lowercase hex sha256 of the serialized block.
func BlockHash(b model.Block) string {
	sum := sha256.Sum256(SerializeBlock(b))
	return hex.EncodeToString(sum[:])
}

// SigningPayload returns the bytes a signer signs for tx: the UTF-8 text of
// hex(sha256(serialize(tx))) with any existing signature stripped. The sender
// field is covered as given, so it should be attached before signing.
func SigningPayload(tx model.Transaction) []byte {
	tx.Signature = nil
	sum := sha256.Sum256(SerializeTx(tx))
	return []byte(hex.EncodeToString(sum[:]))
}

// SerializeTxHex is SerializeTx as lowercase hex, the JSON-RPC transport form.
func SerializeTxHex(tx model.Transaction) string {
	return hex.EncodeToString(SerializeTx(tx))
}

// DeserializeTxHex decodes a hex string produced by SerializeTxHex. An
// optional 0x prefix is accepted.
func DeserializeTxHex(s string) (model.Transaction, error) {
	b, err := decodeHex(s, "transaction")
	if err != nil {
		return model.Transaction{}, err
	}
	return DeserializeTx(b)
}

// SerializeBlockHex is SerializeBlock as lowercase hex.
func SerializeBlockHex(b model.Block) string {
	return hex.EncodeToString(SerializeBlock(b))
}

// DeserializeBlockHex decodes a hex string produced by SerializeBlockHex.
func DeserializeBlockHex(s string) (model.Block, error) {
	b, err := decodeHex(s, "block")
	if err != nil {
		return model.Block{}, err
	}
	return DeserializeBlock(b)
}

func decodeHex(s, what string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, model.SerializationError("bad-hex", "decode "+what+" hex", err)
	}
	return b, nil
}
