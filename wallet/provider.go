// Package wallet provides signing providers per chain family.
//
// A Provider is the seam between the library and whatever holds the keys: a
// local key (the built-in providers), a hardware wallet or a browser session.
// Providers are selected through a registry keyed by chain family; adding a
// family means registering a Factory, not subclassing.
package wallet

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"xdao.co/xchain/model"
)

// Provider is a wallet for one chain family.
//
// SignMessage produces the chain's "personal message" signature (for EVM
// chains, EIP-191 prefixed). SignTransaction signs raw transaction bytes with
// the chain's native transaction rules. Both fail until Connect succeeds.
type Provider interface {
	Connect(ctx context.Context) (model.UniversalAccount, error)
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
	SignTransaction(ctx context.Context, tx []byte) ([]byte, error)
	Disconnect(ctx context.Context) error
	ChainID(ctx context.Context) (string, error)
}

// Config carries what a Factory needs to build a key-backed Provider.
// ChainID empty selects the family's default network.
type Config struct {
	Seed    []byte
	ChainID string
}

// Factory builds a Provider for one chain family.
type Factory func(cfg Config) (Provider, error)

var (
	registryMu sync.RWMutex
	factories  = map[model.Chain]Factory{}
)

// Register adds a Factory for chain. Registering a chain twice is an error.
func Register(chain model.Chain, f Factory) error {
	if chain == "" {
		return fmt.Errorf("wallet: chain is required")
	}
	if f == nil {
		return fmt.Errorf("wallet: %s: nil factory", chain)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := factories[chain]; exists {
		return fmt.Errorf("wallet: %s already registered", chain)
	}
	factories[chain] = f
	return nil
}

func MustRegister(chain model.Chain, f Factory) {
	if err := Register(chain, f); err != nil {
		panic(err)
	}
}

// Chains lists the registered chain families in sorted order.
func Chains() []model.Chain {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]model.Chain, 0, len(factories))
	for c := range factories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Open builds a Provider for chain.
func Open(chain model.Chain, cfg Config) (Provider, error) {
	registryMu.RLock()
	f, ok := factories[chain]
	registryMu.RUnlock()
	if !ok {
		return nil, model.SignerError("unsupported-chain", fmt.Sprintf("wallet: no provider for chain %q", chain), nil)
	}
	return f(cfg)
}

// Signer connects p and returns a UniversalSigner that signs through it.
func Signer(ctx context.Context, p Provider) (*model.UniversalSigner, error) {
	acc, err := p.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &model.UniversalSigner{UniversalAccount: acc, SignMessage: p.SignMessage}, nil
}

func init() {
	MustRegister(model.ChainEthereum, func(cfg Config) (Provider, error) {
		return NewEVM(cfg.Seed, defaulted(cfg.ChainID, model.EthereumTestnet))
	})
	MustRegister(model.ChainPush, func(cfg Config) (Provider, error) {
		return NewPush(cfg.Seed, defaulted(cfg.ChainID, model.PushDevnet))
	})
	MustRegister(model.ChainSolana, func(cfg Config) (Provider, error) {
		return NewSolana(cfg.Seed, defaulted(cfg.ChainID, model.SolanaDevnet))
	})
}

func defaulted(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
