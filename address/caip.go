package address

import (
	"strings"

	"xdao.co/xchain/model"
)

// CAIP namespaces of the supported chain families.
const (
	NamespaceEVM    = "eip155"
	NamespaceSolana = "solana"
	NamespacePush   = "push"
)

type chainRef struct {
	namespace string
	reference string
}

var (
	knownPairs = map[chainRef]struct{}{
		{NamespaceEVM, model.EthereumMainnet}:  {},
		{NamespaceEVM, model.EthereumTestnet}:  {},
		{NamespaceSolana, model.SolanaMainnet}: {},
		{NamespaceSolana, model.SolanaTestnet}: {},
		{NamespaceSolana, model.SolanaDevnet}:  {},
		{NamespacePush, model.PushMainnet}:     {},
		{NamespacePush, model.PushDevnet}:      {},
		{NamespacePush, model.PushLocalnet}:    {},
	}

	namespaceChain = map[string]model.Chain{
		NamespaceEVM:    model.ChainEthereum,
		NamespaceSolana: model.ChainSolana,
		NamespacePush:   model.ChainPush,
	}

	chainNamespace = map[model.Chain]string{
		model.ChainEthereum: NamespaceEVM,
		model.ChainSolana:   NamespaceSolana,
		model.ChainPush:     NamespacePush,
	}
)

// IsKnown reports whether (chain, chainID) is one of the supported pairs.
func IsKnown(chain model.Chain, chainID string) bool {
	ns, ok := chainNamespace[chain]
	if !ok {
		return false
	}
	_, ok = knownPairs[chainRef{ns, chainID}]
	return ok
}

// ToUniversal parses a chain-agnostic address. It never fails:
//
//   - "" yields the zero account;
//   - "<namespace>:<reference>:<address>" maps known pairs to their chain
//     family and passes unknown pairs through verbatim (Chain = namespace,
//     ChainID = reference);
//   - "<namespace>:<address>" keeps the family but leaves ChainID empty;
//   - anything else is treated as a bare address with no chain inferred.
func ToUniversal(s string) model.UniversalAccount {
	if s == "" {
		return model.UniversalAccount{}
	}
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 3:
		return model.UniversalAccount{
			Chain:   resolveChain(parts[0], parts[1]),
			ChainID: parts[1],
			Address: parts[2],
		}
	case 2:
		chain, ok := namespaceChain[parts[0]]
		if !ok {
			chain = model.Chain(parts[0])
		}
		return model.UniversalAccount{Chain: chain, Address: parts[1]}
	default:
		return model.UniversalAccount{Address: s}
	}
}

// ParseChainAgnostic is the strict form of ToUniversal: it requires exactly
// three non-empty segments.
func ParseChainAgnostic(s string) (model.UniversalAccount, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return model.UniversalAccount{}, model.AddressFormatError("bad-segments", "chain-agnostic address must have 3 colon-delimited segments")
	}
	for _, p := range parts {
		if p == "" {
			return model.UniversalAccount{}, model.AddressFormatError("empty-segment", "chain-agnostic address has an empty segment")
		}
	}
	return ToUniversal(s), nil
}

func resolveChain(namespace, reference string) model.Chain {
	if _, ok := knownPairs[chainRef{namespace, reference}]; ok {
		return namespaceChain[namespace]
	}
	return model.Chain(namespace)
}

// ToChainAgnostic renders acc as "<namespace>:<reference>:<address>".
//
// A chain family renders under its CAIP namespace only with a supported chain
// id or no chain id. Any other pair is a pass-through and renders verbatim,
// so ToUniversal("ETHEREUM:1:0x...") round-trips instead of turning into
// "eip155:1:0x...". PUSH accounts whose address is hex are converted to
// bech32 first. An account with an empty address renders as "", and an
// account with no chain renders as its bare address.
func ToChainAgnostic(acc model.UniversalAccount) (string, error) {
	if acc.Address == "" {
		return "", nil
	}
	if acc.Chain == "" {
		return acc.Address, nil
	}

	ns := string(acc.Chain)
	addr := acc.Address
	if acc.ChainID == "" || IsKnown(acc.Chain, acc.ChainID) {
		if family, ok := chainNamespace[acc.Chain]; ok {
			ns = family
		}
		if acc.Chain == model.ChainPush && !IsPushAddress(addr) {
			converted, err := EVMToPush(addr)
			if err != nil {
				return "", err
			}
			addr = converted
		}
	}

	if acc.ChainID == "" {
		return ns + ":" + addr, nil
	}
	return ns + ":" + acc.ChainID + ":" + addr, nil
}

// Format returns the address part of a chain-agnostic string for display.
// It is safe to call with possibly-absent addresses.
func Format(s string) string {
	return ToUniversal(s).Address
}
