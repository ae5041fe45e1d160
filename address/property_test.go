package address

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"xdao.co/xchain/model"
)

// Property: PushToEVM(EVMToPush(a)) == a for every checksummed address a.
func TestPushEVMRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("push/evm conversion is lossless", prop.ForAll(
		func(raw []byte) bool {
			addr := checksumHex(raw)
			push, err := EVMToPush(addr)
			if err != nil {
				return false
			}
			back, err := PushToEVM(push)
			return err == nil && back == addr
		},
		gen.SliceOfN(AccountSize, gen.UInt8()),
	))

	properties.TestingRun(t)
}

// Property: ToChainAgnostic(ToUniversal(s)) == s for every supported pair.
func TestChainAgnosticRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	refs := []chainRef{
		{NamespaceEVM, model.EthereumMainnet},
		{NamespaceEVM, model.EthereumTestnet},
		{NamespaceSolana, model.SolanaMainnet},
		{NamespacePush, model.PushDevnet},
	}

	properties.Property("chain-agnostic strings survive a round trip", prop.ForAll(
		func(idx int, raw []byte) bool {
			ref := refs[idx]
			addr := checksumHex(raw)
			if ref.namespace == NamespacePush {
				var err error
				if addr, err = EVMToPush(addr); err != nil {
					return false
				}
			}
			s := ref.namespace + ":" + ref.reference + ":" + addr
			got, err := ToChainAgnostic(ToUniversal(s))
			return err == nil && got == s
		},
		gen.IntRange(0, len(refs)-1),
		gen.SliceOfN(AccountSize, gen.UInt8()),
	))

	properties.TestingRun(t)
}
