package codec

import (
	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/xchain/internal/wire"
	"xdao.co/xchain/model"
)

const (
	blockFieldTimestamp   protowire.Number = 1
	blockFieldTxObj       protowire.Number = 2
	blockFieldSigners     protowire.Number = 3
	blockFieldAttestToken protowire.Number = 4

	txObjFieldTx            protowire.Number = 1
	txObjFieldValidatorData protowire.Number = 2
	txObjFieldAttestorData  protowire.Number = 3

	voteFieldVote  protowire.Number = 1
	signerFieldSig protowire.Number = 1
)

// SerializeBlock encodes b.
func SerializeBlock(b model.Block) []byte {
	var out []byte
	out = wire.AppendVarint(out, blockFieldTimestamp, b.Timestamp)
	for _, t := range b.Transactions {
		out = wire.AppendMessage(out, blockFieldTxObj, serializeTxObj(t))
	}
	for _, s := range b.Signers {
		out = wire.AppendMessage(out, blockFieldSigners, wire.AppendBytes(nil, signerFieldSig, s.Signature))
	}
	out = wire.AppendBytes(out, blockFieldAttestToken, b.AttestationToken)
	return out
}

func serializeTxObj(t model.BlockTransaction) []byte {
	var out []byte
	out = wire.AppendMessage(out, txObjFieldTx, SerializeTx(t.Tx))
	if t.ValidatorVote != model.VoteUndefined {
		out = wire.AppendMessage(out, txObjFieldValidatorData, serializeVote(t.ValidatorVote))
	}
	for _, v := range t.AttestorVotes {
		out = wire.AppendMessage(out, txObjFieldAttestorData, serializeVote(v))
	}
	return out
}

func serializeVote(v model.Vote) []byte {
	return wire.AppendVarint(nil, voteFieldVote, uint64(int64(v)))
}

// DeserializeBlock decodes b. Unknown fields are skipped.
func DeserializeBlock(b []byte) (model.Block, error) {
	var blk model.Block
	err := wire.Walk(b, "block", func(num protowire.Number, typ protowire.Type, r *wire.Reader) error {
		var err error
		switch num {
		case blockFieldTimestamp:
			blk.Timestamp, err = r.Varint(num, typ)
		case blockFieldTxObj:
			var raw []byte
			if raw, err = r.Bytes(num, typ); err != nil {
				return err
			}
			var t model.BlockTransaction
			if t, err = deserializeTxObj(raw); err == nil {
				blk.Transactions = append(blk.Transactions, t)
			}
		case blockFieldSigners:
			var raw []byte
			if raw, err = r.Bytes(num, typ); err != nil {
				return err
			}
			var s model.Signer
			if s, err = deserializeSigner(raw); err == nil {
				blk.Signers = append(blk.Signers, s)
			}
		case blockFieldAttestToken:
			blk.AttestationToken, err = r.Bytes(num, typ)
		default:
			err = r.Skip(num, typ)
		}
		return err
	})
	if err != nil {
		return model.Block{}, err
	}
	return blk, nil
}

func deserializeTxObj(b []byte) (model.BlockTransaction, error) {
	var t model.BlockTransaction
	err := wire.Walk(b, "transaction object", func(num protowire.Number, typ protowire.Type, r *wire.Reader) error {
		var err error
		switch num {
		case txObjFieldTx:
			var raw []byte
			if raw, err = r.Bytes(num, typ); err == nil {
				t.Tx, err = DeserializeTx(raw)
			}
		case txObjFieldValidatorData:
			var raw []byte
			if raw, err = r.Bytes(num, typ); err == nil {
				t.ValidatorVote, err = deserializeVote(raw)
			}
		case txObjFieldAttestorData:
			var raw []byte
			if raw, err = r.Bytes(num, typ); err != nil {
				return err
			}
			var v model.Vote
			if v, err = deserializeVote(raw); err == nil {
				t.AttestorVotes = append(t.AttestorVotes, v)
			}
		default:
			err = r.Skip(num, typ)
		}
		return err
	})
	return t, err
}

func deserializeVote(b []byte) (model.Vote, error) {
	var v model.Vote
	err := wire.Walk(b, "vote", func(num protowire.Number, typ protowire.Type, r *wire.Reader) error {
		if num != voteFieldVote {
			return r.Skip(num, typ)
		}
		x, err := r.Varint(num, typ)
		v = model.Vote(int32(x))
		return err
	})
	return v, err
}

func deserializeSigner(b []byte) (model.Signer, error) {
	var s model.Signer
	err := wire.Walk(b, "signer", func(num protowire.Number, typ protowire.Type, r *wire.Reader) error {
		if num != signerFieldSig {
			return r.Skip(num, typ)
		}
		var err error
		s.Signature, err = r.Bytes(num, typ)
		return err
	})
	return s, err
}
