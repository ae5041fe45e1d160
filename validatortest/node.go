// Package validatortest is an in-memory validator network for tests and local
// development.
//
// A Node accepts signed transactions over JSON-RPC (HTTP or gRPC), seals one
// block per transaction, serves the history queries, and pushes BLOCK
// messages to websocket subscribers. It is not a consensus implementation:
// every block is final the moment it is sealed.
package validatortest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"xdao.co/xchain/codec"
	"xdao.co/xchain/model"
	"xdao.co/xchain/rpc"
)

type Option func(*Node)

// WithVote decides the validator vote for each accepted submission. The
// default accepts everything.
func WithVote(fn func(model.Transaction) model.Vote) Option {
	return func(n *Node) { n.vote = fn }
}

// WithVerifier runs before sealing; an error refuses the submission with
// rpc.CodeTxRejected.
func WithVerifier(fn func(model.Transaction) error) Option {
	return func(n *Node) { n.verify = fn }
}

// WithBroadcast makes the node push BLOCK messages without a subscriptionId,
// once per connection, leaving routing to the client.
func WithBroadcast() Option {
	return func(n *Node) { n.broadcast = true }
}

// WithAckDelay delays every SUBSCRIBE_ACK.
func WithAckDelay(d time.Duration) Option {
	return func(n *Node) { n.ackDelay = d }
}

func WithClock(now func() time.Time) Option {
	return func(n *Node) { n.now = now }
}

func WithLogger(log *logrus.Entry) Option {
	return func(n *Node) {
		if log != nil {
			n.log = log
		}
	}
}

// Node is the in-memory validator. It is safe for concurrent use.
type Node struct {
	vote      func(model.Transaction) model.Vote
	verify    func(model.Transaction) error
	broadcast bool
	ackDelay  time.Duration
	now       func() time.Time
	log       *logrus.Entry

	mu      sync.Mutex
	blocks  []*sealedBlock
	byBlock map[string]*sealedBlock
	byTx    map[string]*sealedTx
	lastTs  uint64
	conns   map[*wsConn]struct{}
}

type sealedBlock struct {
	hash  string
	block model.Block
	raw   []byte
	txs   []*sealedTx
}

type sealedTx struct {
	hash      string
	blockHash string
	ts        uint64
	tx        model.Transaction
	raw       []byte
	status    model.TxStatus
}

var _ rpc.Handler = (*Node)(nil)

func NewNode(opts ...Option) *Node {
	n := &Node{
		vote:    func(model.Transaction) model.Vote { return model.VoteAccepted },
		now:     time.Now,
		log:     logrus.NewEntry(logrus.StandardLogger()),
		byBlock: map[string]*sealedBlock{},
		byTx:    map[string]*sealedTx{},
		conns:   map[*wsConn]struct{}{},
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.WithField("component", "validatortest")
	return n
}

// Submit validates tx, seals it into a new block and notifies subscribers.
// It returns the transaction hash.
func (n *Node) Submit(tx model.Transaction) (string, error) {
	if tx.Sender == "" || len(tx.Signature) == 0 {
		return "", rpc.Errorf(rpc.CodeTxRejected, "transaction is not signed")
	}
	if tx.Category == "" {
		return "", rpc.Errorf(rpc.CodeTxRejected, "category is required")
	}
	if n.verify != nil {
		if err := n.verify(tx); err != nil {
			return "", rpc.Errorf(rpc.CodeTxRejected, "%v", err)
		}
	}
	raw := codec.SerializeTx(tx)
	txHash := codec.TxHash(tx)

	vote := n.vote(tx)
	status := model.TxStatusAccepted
	if vote == model.VoteRejected {
		status = model.TxStatusRejected
	}

	n.mu.Lock()
	if _, dup := n.byTx[txHash]; dup {
		n.mu.Unlock()
		return "", rpc.Errorf(rpc.CodeTxRejected, "duplicate transaction %s", txHash)
	}
	ts := uint64(n.now().UnixMilli())
	if ts <= n.lastTs {
		ts = n.lastTs + 1
	}
	n.lastTs = ts

	blk := model.Block{
		Timestamp: ts,
		Transactions: []model.BlockTransaction{{
			Tx:            tx,
			ValidatorVote: vote,
			AttestorVotes: []model.Vote{vote},
		}},
		AttestationToken: []byte(txHash[:16]),
	}
	sig := sha256.Sum256([]byte("validator:" + txHash))
	blk.Signers = []model.Signer{{Signature: sig[:]}}

	sb := &sealedBlock{hash: codec.BlockHash(blk), block: blk, raw: codec.SerializeBlock(blk)}
	stx := &sealedTx{hash: txHash, blockHash: sb.hash, ts: ts, tx: tx, raw: raw, status: status}
	sb.txs = []*sealedTx{stx}
	n.blocks = append(n.blocks, sb)
	n.byBlock[sb.hash] = sb
	n.byTx[txHash] = stx
	targets := n.pushTargets(blk)
	n.mu.Unlock()

	n.log.WithFields(logrus.Fields{"txHash": txHash, "category": tx.Category, "vote": vote}).Debug("sealed")
	n.push(targets, sb)
	return txHash, nil
}

// Blocks returns every sealed block, oldest first.
func (n *Node) Blocks() []model.Block {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.Block, 0, len(n.blocks))
	for _, b := range n.blocks {
		out = append(out, b.block)
	}
	return out
}

// HandleRPC implements rpc.Handler.
func (n *Node) HandleRPC(ctx context.Context, method string, params []json.RawMessage) (any, error) {
	switch method {
	case rpc.MethodSendTransaction:
		var txHex string
		if err := rpc.Params(params, &txHex); err != nil {
			return nil, err
		}
		tx, err := codec.DeserializeTxHex(txHex)
		if err != nil {
			return nil, rpc.Errorf(rpc.CodeInvalidParams, "transaction: %v", err)
		}
		return n.Submit(tx)

	case rpc.MethodGetTransactions:
		var q query
		if err := rpc.Params(params, &q.start, &q.dir, &q.size, &q.page, &q.category); err != nil {
			return nil, err
		}
		return n.txPage(q, nil)

	case rpc.MethodGetTransactionsBySender, rpc.MethodGetTransactionsByRecipient:
		var who string
		var q query
		if err := rpc.Params(params, &who, &q.start, &q.dir, &q.size, &q.page, &q.category); err != nil {
			return nil, err
		}
		if who == "" {
			return nil, rpc.Errorf(rpc.CodeInvalidParams, "address is required")
		}
		match := func(tx model.Transaction) bool { return tx.Sender == who }
		if method == rpc.MethodGetTransactionsByRecipient {
			match = func(tx model.Transaction) bool {
				for _, r := range tx.Recipients {
					if r == who {
						return true
					}
				}
				return false
			}
		}
		return n.txPage(q, match)

	case rpc.MethodGetTransactionByHash:
		var hash string
		if err := rpc.Params(params, &hash); err != nil {
			return nil, err
		}
		n.mu.Lock()
		defer n.mu.Unlock()
		page := rpc.Page{Blocks: []rpc.BlockResult{}}
		if stx, ok := n.byTx[hash]; ok {
			page.Blocks = append(page.Blocks, blockResult(n.byBlock[stx.blockHash], []*sealedTx{stx}, false))
			page.LastTs = stx.ts
			page.TotalPages = 1
		}
		return page, nil

	case rpc.MethodGetBlocks:
		var q query
		var details bool
		if err := rpc.Params(params, &q.start, &q.dir, &details, &q.size, &q.page); err != nil {
			return nil, err
		}
		return n.blockPage(q, details)

	case rpc.MethodGetBlockByHash:
		var hash string
		if err := rpc.Params(params, &hash); err != nil {
			return nil, err
		}
		n.mu.Lock()
		defer n.mu.Unlock()
		page := rpc.Page{Blocks: []rpc.BlockResult{}}
		if sb, ok := n.byBlock[hash]; ok {
			page.Blocks = append(page.Blocks, blockResult(sb, sb.txs, true))
			page.LastTs = sb.block.Timestamp
			page.TotalPages = 1
			page.TotalBlocks = 1
		}
		return page, nil

	default:
		return nil, rpc.Errorf(rpc.CodeMethodNotFound, "method %q not found", method)
	}
}

type query struct {
	start    uint64
	dir      string
	size     int
	page     int
	category string
}

func (q *query) normalize() error {
	switch model.Direction(q.dir) {
	case model.Asc, model.Desc:
	case "":
		q.dir = string(model.Desc)
	default:
		return rpc.Errorf(rpc.CodeInvalidParams, "direction must be ASC or DESC, got %q", q.dir)
	}
	if q.size == 0 {
		q.size = 30
	}
	if q.page == 0 {
		q.page = 1
	}
	if q.size < 0 || q.page < 0 {
		return rpc.Errorf(rpc.CodeInvalidParams, "page and pageSize must be positive")
	}
	return nil
}

func (q query) inWindow(ts uint64) bool {
	if q.start == 0 {
		return true
	}
	if model.Direction(q.dir) == model.Asc {
		return ts >= q.start
	}
	return ts <= q.start
}

// paginate returns the [lo, hi) bounds of page within total items and the
// page count.
func (q query) paginate(total int) (lo, hi, pages int) {
	pages = (total + q.size - 1) / q.size
	lo = (q.page - 1) * q.size
	if lo > total {
		lo = total
	}
	hi = lo + q.size
	if hi > total {
		hi = total
	}
	return lo, hi, pages
}

func (n *Node) txPage(q query, match func(model.Transaction) bool) (rpc.Page, error) {
	if err := q.normalize(); err != nil {
		return rpc.Page{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	var hits []*sealedTx
	for _, sb := range n.blocks {
		for _, stx := range sb.txs {
			if !q.inWindow(stx.ts) {
				continue
			}
			if q.category != "" && stx.tx.Category != q.category {
				continue
			}
			if match != nil && !match(stx.tx) {
				continue
			}
			hits = append(hits, stx)
		}
	}
	sortByTs(hits, func(i int) uint64 { return hits[i].ts }, q.dir)

	lo, hi, pages := q.paginate(len(hits))
	page := rpc.Page{Blocks: []rpc.BlockResult{}, TotalPages: pages}
	for _, stx := range hits[lo:hi] {
		// One transaction per block, so each hit is its own block entry.
		page.Blocks = append(page.Blocks, blockResult(n.byBlock[stx.blockHash], []*sealedTx{stx}, false))
		page.LastTs = stx.ts
	}
	return page, nil
}

func (n *Node) blockPage(q query, details bool) (rpc.Page, error) {
	if err := q.normalize(); err != nil {
		return rpc.Page{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	var hits []*sealedBlock
	for _, sb := range n.blocks {
		if q.inWindow(sb.block.Timestamp) {
			hits = append(hits, sb)
		}
	}
	sortByTs(hits, func(i int) uint64 { return hits[i].block.Timestamp }, q.dir)

	lo, hi, pages := q.paginate(len(hits))
	page := rpc.Page{Blocks: []rpc.BlockResult{}, TotalPages: pages, TotalBlocks: len(hits)}
	for _, sb := range hits[lo:hi] {
		page.Blocks = append(page.Blocks, blockResult(sb, sb.txs, details))
		page.LastTs = sb.block.Timestamp
	}
	return page, nil
}

func sortByTs[T any](s []T, ts func(int) uint64, dir string) {
	sort.SliceStable(s, func(i, j int) bool {
		if model.Direction(dir) == model.Asc {
			return ts(i) < ts(j)
		}
		return ts(i) > ts(j)
	})
}

func blockResult(sb *sealedBlock, txs []*sealedTx, withData bool) rpc.BlockResult {
	br := rpc.BlockResult{
		BlockHash:    sb.hash,
		Ts:           sb.block.Timestamp,
		BlockSize:    len(sb.raw),
		Transactions: make([]rpc.TxResult, 0, len(txs)),
	}
	if withData {
		br.BlockData = hex.EncodeToString(sb.raw)
	}
	for _, stx := range txs {
		br.Transactions = append(br.Transactions, rpc.TxResult{
			TxnHash:    stx.hash,
			BlockHash:  sb.hash,
			Ts:         stx.ts,
			Category:   stx.tx.Category,
			From:       stx.tx.Sender,
			Recipients: stx.tx.Recipients,
			TxnData:    hex.EncodeToString(stx.raw),
			Status:     string(stx.status),
		})
	}
	return br
}
