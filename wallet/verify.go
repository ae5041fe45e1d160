package wallet

import (
	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	"xdao.co/xchain/address"
	"xdao.co/xchain/codec"
	"xdao.co/xchain/model"
)

// VerifyMessage checks sig as a SignMessage signature by acc over msg.
// Accounts on unknown networks are verified by namespace.
func VerifyMessage(acc model.UniversalAccount, msg, sig []byte) error {
	switch acc.Chain {
	case model.ChainEthereum, model.ChainPush, address.NamespaceEVM, address.NamespacePush:
		return verifyEVM(acc.Address, msg, sig)
	case model.ChainSolana, address.NamespaceSolana:
		return verifySolana(acc.Address, msg, sig)
	default:
		return model.SignerError("unsupported-chain", "wallet: cannot verify signatures for chain "+string(acc.Chain), nil)
	}
}

// VerifyTx checks that tx is signed by its sender over its signing payload.
func VerifyTx(tx model.Transaction) error {
	if !tx.IsSigned() {
		return model.SignerError("unsigned", "wallet: transaction is not signed", nil)
	}
	return VerifyMessage(address.ToUniversal(tx.Sender), codec.SigningPayload(tx), tx.Signature)
}

func verifyEVM(addr string, msg, sig []byte) error {
	if len(sig) != crypto.SignatureLength {
		return model.SignerError("bad-signature", "wallet: evm signature must be 65 bytes", nil)
	}
	want := addr
	if address.IsPushAddress(addr) {
		var err error
		if want, err = address.PushToEVM(addr); err != nil {
			return err
		}
	}
	want, err := address.ChecksumEVM(want)
	if err != nil {
		return err
	}

	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), s)
	if err != nil {
		return model.SignerError("bad-signature", "wallet: recover signer", err)
	}
	if got := crypto.PubkeyToAddress(*pub).Hex(); got != want {
		return model.SignerError("signer-mismatch", "wallet: signature is by "+got+", not "+want, nil)
	}
	return nil
}

func verifySolana(addr string, msg, sig []byte) error {
	pub, err := base58.Decode(addr)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return model.AddressFormatError("bad-solana-address", "wallet: solana address must be a base58 ed25519 public key")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return model.SignerError("bad-signature", "wallet: ed25519 signature does not verify", nil)
	}
	return nil
}
