package wallet

import (
	"context"
	"sync"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/mr-tron/base58"

	"xdao.co/xchain/model"
)

// Solana is an ed25519 key provider. The account address is the base58
// public key.
type Solana struct {
	key     ed25519.PrivateKey
	chainID string
	addr    string

	mu        sync.Mutex
	connected bool
}

// NewSolana returns a provider for a 32-byte ed25519 seed.
func NewSolana(seed []byte, chainID string) (*Solana, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, model.SignerError("bad-key", "wallet: ed25519 seed must be 32 bytes", nil)
	}
	key := ed25519.NewKeyFromSeed(seed)
	pub := key.Public().(ed25519.PublicKey)
	return &Solana{key: key, chainID: chainID, addr: base58.Encode(pub)}, nil
}

func (p *Solana) Connect(ctx context.Context) (model.UniversalAccount, error) {
	if err := ctx.Err(); err != nil {
		return model.UniversalAccount{}, model.SignerError("connect-canceled", "wallet: connect", err)
	}
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return model.UniversalAccount{Chain: model.ChainSolana, ChainID: p.chainID, Address: p.addr}, nil
}

// SignMessage signs msg as is, which is what Solana wallets do for
// signMessage.
func (p *Solana) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if err := p.ready(ctx); err != nil {
		return nil, err
	}
	return ed25519.Sign(p.key, msg), nil
}

// SignTransaction signs the serialized transaction message.
func (p *Solana) SignTransaction(ctx context.Context, tx []byte) ([]byte, error) {
	return p.SignMessage(ctx, tx)
}

func (p *Solana) Disconnect(context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

func (p *Solana) ChainID(context.Context) (string, error) {
	return p.chainID, nil
}

func (p *Solana) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return model.SignerError("sign-canceled", "wallet: sign", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return model.SignerError("not-connected", "wallet: provider is not connected", nil)
	}
	return nil
}
