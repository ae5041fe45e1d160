// Package codec encodes the Transaction and Block envelopes to their compact
// binary wire form.
//
// The wire format is protobuf-compatible (proto3 field rules) and is written
// directly with protowire so this package does not require a protoc/codegen
// toolchain. Proto definition, for reference:
//
//	message Transaction {
//	  uint32 type = 1; string category = 2; string sender = 3;
//	  repeated string recipients = 4; bytes data = 5; bytes salt = 6;
//	  bytes apiToken = 7; bytes signature = 8; string fee = 9;
//	}
//	message Block {
//	  uint64 ts = 1; repeated TransactionObj txObj = 2;
//	  repeated Signer signers = 3; bytes attestToken = 4;
//	}
//	message TransactionObj {
//	  Transaction tx = 1; TxValidatorData validatorData = 2;
//	  repeated TxAttestorData attestorData = 3;
//	}
//	message TxValidatorData { Vote vote = 1; }
//	message TxAttestorData { Vote vote = 1; }
//	message Signer { bytes sig = 1; }
//
// Payload bytes (Transaction.data) are opaque here; package schema owns their
// interpretation.
package codec

import (
	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/xchain/internal/wire"
	"xdao.co/xchain/model"
)

const (
	txFieldType       protowire.Number = 1
	txFieldCategory   protowire.Number = 2
	txFieldSender     protowire.Number = 3
	txFieldRecipients protowire.Number = 4
	txFieldData       protowire.Number = 5
	txFieldSalt       protowire.Number = 6
	txFieldAPIToken   protowire.Number = 7
	txFieldSignature  protowire.Number = 8
	txFieldFee        protowire.Number = 9
)

// SerializeTx encodes tx. Zero-valued scalar fields are omitted, as in proto3.
func SerializeTx(tx model.Transaction) []byte {
	var b []byte
	b = wire.AppendVarint(b, txFieldType, uint64(tx.Type))
	b = wire.AppendString(b, txFieldCategory, tx.Category)
	b = wire.AppendString(b, txFieldSender, tx.Sender)
	b = wire.AppendRepeatedString(b, txFieldRecipients, tx.Recipients)
	b = wire.AppendBytes(b, txFieldData, tx.Data)
	b = wire.AppendBytes(b, txFieldSalt, tx.Salt)
	b = wire.AppendBytes(b, txFieldAPIToken, tx.APIToken)
	b = wire.AppendBytes(b, txFieldSignature, tx.Signature)
	b = wire.AppendString(b, txFieldFee, tx.Fee)
	return b
}

// DeserializeTx decodes b. Unknown fields are skipped.
func DeserializeTx(b []byte) (model.Transaction, error) {
	var tx model.Transaction
	err := wire.Walk(b, "transaction", func(num protowire.Number, typ protowire.Type, r *wire.Reader) error {
		var err error
		switch num {
		case txFieldType:
			var v uint64
			if v, err = r.Varint(num, typ); err == nil {
				if v > 0xFFFFFFFF {
					return wire.Corrupt("transaction", "type overflows uint32", nil)
				}
				tx.Type = uint32(v)
			}
		case txFieldCategory:
			tx.Category, err = r.String(num, typ)
		case txFieldSender:
			tx.Sender, err = r.String(num, typ)
		case txFieldRecipients:
			var v string
			if v, err = r.String(num, typ); err == nil {
				tx.Recipients = append(tx.Recipients, v)
			}
		case txFieldData:
			tx.Data, err = r.Bytes(num, typ)
		case txFieldSalt:
			tx.Salt, err = r.Bytes(num, typ)
		case txFieldAPIToken:
			tx.APIToken, err = r.Bytes(num, typ)
		case txFieldSignature:
			tx.Signature, err = r.Bytes(num, typ)
		case txFieldFee:
			tx.Fee, err = r.String(num, typ)
		default:
			err = r.Skip(num, typ)
		}
		return err
	})
	if err != nil {
		return model.Transaction{}, err
	}
	return tx, nil
}
