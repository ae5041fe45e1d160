package model

import (
	"bytes"
	"context"
	"slices"
	"time"
)

// Chain names a chain family. Unknown CAIP namespaces are carried verbatim.
type Chain string

const (
	ChainEthereum Chain = "ETHEREUM"
	ChainSolana   Chain = "SOLANA"
	ChainPush     Chain = "PUSH"
)

// Known chain ids, grouped by family.
const (
	EthereumMainnet = "1"
	EthereumTestnet = "11155111"

	SolanaMainnet = "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	SolanaTestnet = "4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z"
	SolanaDevnet  = "EtWTRABZaYq6iMfeYKouRu166VU2xqa1"

	PushMainnet  = "mainnet"
	PushDevnet   = "devnet"
	PushLocalnet = "localnet"
)

// UniversalAccount is the canonical, chain-agnostic account identity.
//
// Address is kept in the chain's native textual form; it is never
// pre-converted (a PUSH account may carry either hex or bech32 text).
type UniversalAccount struct {
	Chain   Chain  `json:"chain"`
	ChainID string `json:"chainId"`
	Address string `json:"address"`
}

// IsZero reports whether a is the empty account.
func (a UniversalAccount) IsZero() bool {
	return a.Chain == "" && a.ChainID == "" && a.Address == ""
}

// SignFunc signs msg and returns the raw signature bytes. Implementations may
// block on user interaction (e.g. a wallet prompt); ctx bounds that wait.
type SignFunc func(ctx context.Context, msg []byte) ([]byte, error)

// UniversalSigner is an account plus a signing capability. Its lifetime is
// owned by the caller; the library never retains it past a single call.
type UniversalSigner struct {
	UniversalAccount
	SignMessage SignFunc `json:"-"`
}

// Transaction is the envelope submitted to the validator network.
//
// An unsigned transaction has Sender == "" and an empty Signature. Salt and
// APIToken are generated once at creation and must not be regenerated; the
// signature covers them. Recipients are chain-agnostic address strings and
// their order is the delivery order.
type Transaction struct {
	Type       uint32   `json:"type"`
	Category   string   `json:"category"`
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
	Data       []byte   `json:"data"`
	Salt       []byte   `json:"salt"`
	APIToken   []byte   `json:"apiToken"`
	Signature  []byte   `json:"signature"`
	Fee        string   `json:"fee"`
}

// IsSigned reports whether a sender and signature have been attached.
func (tx Transaction) IsSigned() bool {
	return tx.Sender != "" && len(tx.Signature) > 0
}

// Equal reports whether tx and o carry the same field values. Nil and empty
// byte slices compare equal, matching the wire format which cannot tell them
// apart.
func (tx Transaction) Equal(o Transaction) bool {
	return tx.Type == o.Type &&
		tx.Category == o.Category &&
		tx.Sender == o.Sender &&
		slices.Equal(tx.Recipients, o.Recipients) &&
		bytes.Equal(tx.Data, o.Data) &&
		bytes.Equal(tx.Salt, o.Salt) &&
		bytes.Equal(tx.APIToken, o.APIToken) &&
		bytes.Equal(tx.Signature, o.Signature) &&
		tx.Fee == o.Fee
}

// Vote is a validator or attestor verdict on a transaction.
type Vote int32

const (
	VoteUndefined Vote = 0
	VoteAccepted  Vote = 1
	VoteRejected  Vote = 2
)

func (v Vote) String() string {
	switch v {
	case VoteAccepted:
		return "ACCEPTED"
	case VoteRejected:
		return "REJECTED"
	default:
		return "UNDEFINED"
	}
}

// BlockTransaction is a transaction as recorded in a block, with per-tx votes.
type BlockTransaction struct {
	Tx            Transaction `json:"tx"`
	ValidatorVote Vote        `json:"validatorVote"`
	AttestorVotes []Vote      `json:"attestorVotes"`
}

// Signer is one validator signature over a block.
type Signer struct {
	Signature []byte `json:"sig"`
}

// Block is produced only by the validator network; clients decode it and
// never construct one for submission.
type Block struct {
	Timestamp        uint64             `json:"ts"`
	Transactions     []BlockTransaction `json:"transactions"`
	Signers          []Signer           `json:"signers"`
	AttestationToken []byte             `json:"attestToken"`
}

// Equal reports whether b and o carry the same field values.
func (b Block) Equal(o Block) bool {
	if b.Timestamp != o.Timestamp ||
		!bytes.Equal(b.AttestationToken, o.AttestationToken) ||
		len(b.Transactions) != len(o.Transactions) ||
		len(b.Signers) != len(o.Signers) {
		return false
	}
	for i := range b.Transactions {
		x, y := b.Transactions[i], o.Transactions[i]
		if !x.Tx.Equal(y.Tx) || x.ValidatorVote != y.ValidatorVote || !slices.Equal(x.AttestorVotes, y.AttestorVotes) {
			return false
		}
	}
	for i := range b.Signers {
		if !bytes.Equal(b.Signers[i].Signature, o.Signers[i].Signature) {
			return false
		}
	}
	return true
}

// Time returns the block timestamp (milliseconds since epoch) as time.Time.
func (b Block) Time() time.Time {
	return time.UnixMilli(int64(b.Timestamp))
}

// TxStatus is the server-reported status of a transaction.
type TxStatus string

const (
	TxStatusUnknown  TxStatus = ""
	TxStatusPending  TxStatus = "PENDING"
	TxStatusAccepted TxStatus = "ACCEPTED"
	TxStatusRejected TxStatus = "REJECTED"
)

// Direction orders history queries by timestamp.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// TxRecord is a decoded transaction plus server metadata.
type TxRecord struct {
	Hash      string      `json:"txnHash"`
	BlockHash string      `json:"blockHash"`
	Timestamp uint64      `json:"ts"`
	Status    TxStatus    `json:"status"`
	Tx        Transaction `json:"tx"`
}

// BlockRecord is a decoded block plus server metadata.
type BlockRecord struct {
	Hash         string     `json:"blockHash"`
	Timestamp    uint64     `json:"ts"`
	Size         int        `json:"blockSize"`
	Block        Block      `json:"block"`
	Transactions []TxRecord `json:"transactions"`
}

// BlockPage is one page of a block or transaction history query.
// An empty page is a valid result and is never reported as an error.
type BlockPage struct {
	Blocks      []BlockRecord `json:"blocks"`
	LastTs      uint64        `json:"lastTs"`
	TotalPages  int           `json:"totalPages"`
	TotalBlocks int           `json:"totalBlocks"`
}

// FilterType selects what a subscription filter matches on.
type FilterType string

const (
	FilterCategory   FilterType = "CATEGORY"
	FilterFrom       FilterType = "FROM"
	FilterRecipients FilterType = "RECIPIENTS"
	FilterWildcard   FilterType = "WILDCARD"
)

// Filter is a server-evaluated subscription predicate.
type Filter struct {
	Type  FilterType `json:"type"`
	Value []string   `json:"value"`
}

// WildcardFilter matches every block.
func WildcardFilter() Filter {
	return Filter{Type: FilterWildcard, Value: []string{"*"}}
}

// Subscription is an active server-side subscription.
type Subscription struct {
	ID      string   `json:"subscriptionId"`
	Filters []Filter `json:"filters"`
}
