package codec

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"xdao.co/xchain/model"
)

// Property: DeserializeTx(SerializeTx(tx)) == tx for any tx.
func TestTxRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("transaction survives a wire round trip", prop.ForAll(
		func(typ uint32, category, sender string, recipients []string, data, salt, sig []byte, fee string) bool {
			tx := model.Transaction{
				Type:       typ,
				Category:   category,
				Sender:     sender,
				Recipients: recipients,
				Data:       data,
				Salt:       salt,
				APIToken:   salt,
				Signature:  sig,
				Fee:        fee,
			}
			got, err := DeserializeTx(SerializeTx(tx))
			return err == nil && got.Equal(tx)
		},
		gen.UInt32(),
		gen.AlphaString(),
		gen.AnyString(),
		gen.SliceOf(gen.AnyString()),
		gen.SliceOf(gen.UInt8()),
		gen.SliceOfN(32, gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
		gen.NumString(),
	))

	properties.Property("block survives a wire round trip", prop.ForAll(
		func(ts uint64, categories []string, votes []int32, token []byte) bool {
			blk := model.Block{Timestamp: ts, AttestationToken: token}
			for i, c := range categories {
				bt := model.BlockTransaction{Tx: model.Transaction{Category: c, Fee: "0"}}
				if i < len(votes) {
					bt.ValidatorVote = model.Vote(votes[i])
					bt.AttestorVotes = []model.Vote{model.Vote(votes[i])}
				}
				blk.Transactions = append(blk.Transactions, bt)
				blk.Signers = append(blk.Signers, model.Signer{Signature: []byte(c)})
			}
			got, err := DeserializeBlock(SerializeBlock(blk))
			return err == nil && got.Equal(blk)
		},
		gen.UInt64(),
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Int32Range(0, 2)),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
