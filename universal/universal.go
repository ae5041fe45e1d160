// Package universal builds the signing identities used by every operation
// that must produce a signature.
package universal

import "xdao.co/xchain/model"

// Defaults applied when an option leaves Chain or ChainID empty.
const (
	DefaultChain   = model.ChainEthereum
	DefaultChainID = model.EthereumTestnet
)

// AccountOptions configures CreateUniversalAccount. Chain and ChainID are
// optional and override the defaults independently.
type AccountOptions struct {
	Address string
	Chain   model.Chain
	ChainID string
}

// SignerOptions configures CreateUniversalSigner.
type SignerOptions struct {
	Address     string
	SignMessage model.SignFunc
	Chain       model.Chain
	ChainID     string
}

// CreateUniversalAccount returns an account, defaulting to the Ethereum test
// network when Chain or ChainID are omitted.
func CreateUniversalAccount(opts AccountOptions) model.UniversalAccount {
	acc := model.UniversalAccount{
		Chain:   DefaultChain,
		ChainID: DefaultChainID,
		Address: opts.Address,
	}
	if opts.Chain != "" {
		acc.Chain = opts.Chain
	}
	if opts.ChainID != "" {
		acc.ChainID = opts.ChainID
	}
	return acc
}

// CreateUniversalSigner applies the same defaults as CreateUniversalAccount
// and attaches SignMessage as given.
func CreateUniversalSigner(opts SignerOptions) model.UniversalSigner {
	return model.UniversalSigner{
		UniversalAccount: CreateUniversalAccount(AccountOptions{
			Address: opts.Address,
			Chain:   opts.Chain,
			ChainID: opts.ChainID,
		}),
		SignMessage: opts.SignMessage,
	}
}
