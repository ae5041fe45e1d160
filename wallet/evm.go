package wallet

import (
	"context"
	"crypto/ecdsa"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"

	"xdao.co/xchain/address"
	"xdao.co/xchain/model"
)

// EVM is a secp256k1 key provider for Ethereum and the EVM-compatible Push
// chain. A Push provider reports its account in bech32 form; signatures are
// identical to the Ethereum ones for the same key.
type EVM struct {
	key     *ecdsa.PrivateKey
	chain   model.Chain
	chainID string
	addr    string

	mu        sync.Mutex
	connected bool
}

// NewEVM returns an Ethereum provider for a 32-byte secp256k1 private key.
func NewEVM(seed []byte, chainID string) (*EVM, error) {
	return newEVM(seed, model.ChainEthereum, chainID)
}

// NewPush returns a Push chain provider for a 32-byte secp256k1 private key.
func NewPush(seed []byte, chainID string) (*EVM, error) {
	return newEVM(seed, model.ChainPush, chainID)
}

func newEVM(seed []byte, chain model.Chain, chainID string) (*EVM, error) {
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		return nil, model.SignerError("bad-key", "wallet: invalid secp256k1 key", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	if chain == model.ChainPush {
		if addr, err = address.EVMToPush(addr); err != nil {
			return nil, err
		}
	}
	return &EVM{key: key, chain: chain, chainID: chainID, addr: addr}, nil
}

func (p *EVM) Connect(ctx context.Context) (model.UniversalAccount, error) {
	if err := ctx.Err(); err != nil {
		return model.UniversalAccount{}, model.SignerError("connect-canceled", "wallet: connect", err)
	}
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return model.UniversalAccount{Chain: p.chain, ChainID: p.chainID, Address: p.addr}, nil
}

// SignMessage returns a 65-byte EIP-191 personal_sign signature with V in
// {27, 28}.
func (p *EVM) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if err := p.ready(ctx); err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash(msg), p.key)
	if err != nil {
		return nil, model.SignerError("sign-failed", "wallet: personal_sign", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SignTransaction signs keccak256(tx) without a message prefix and returns
// the 65-byte [R || S || V] signature with V in {0, 1}.
func (p *EVM) SignTransaction(ctx context.Context, tx []byte) ([]byte, error) {
	if err := p.ready(ctx); err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(crypto.Keccak256(tx), p.key)
	if err != nil {
		return nil, model.SignerError("sign-failed", "wallet: sign transaction", err)
	}
	return sig, nil
}

func (p *EVM) Disconnect(context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

func (p *EVM) ChainID(context.Context) (string, error) {
	return p.chainID, nil
}

func (p *EVM) ready(ctx context.Context) error {
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
