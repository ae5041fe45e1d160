package rpc

import (
	"xdao.co/xchain/codec"
	"xdao.co/xchain/model"
)

// Validator JSON-RPC methods.
//
// Positional params:
//
//	push_sendTransaction             (txHex)                                         -> txHash
//	push_getTransactions             (startTime, direction, pageSize, page, category) -> Page
//	push_getTransactionsBySender     (sender, startTime, direction, pageSize, page, category)
//	push_getTransactionsByRecipient  (recipient, startTime, direction, pageSize, page, category)
//	push_getTransactionByHash        (txHash)                                        -> Page
//	push_getBlocks                   (startTime, direction, showDetails, pageSize, page) -> Page
//	push_getBlockByHash              (blockHash)                                     -> Page
//
// startTime is milliseconds since epoch; an empty category means any.
const (
	MethodSendTransaction            = "push_sendTransaction"
	MethodGetTransactions            = "push_getTransactions"
	MethodGetTransactionsBySender    = "push_getTransactionsBySender"
	MethodGetTransactionsByRecipient = "push_getTransactionsByRecipient"
	MethodGetTransactionByHash       = "push_getTransactionByHash"
	MethodGetBlocks                  = "push_getBlocks"
	MethodGetBlockByHash             = "push_getBlockByHash"
)

// Page is the result of every history query: blocks, newest or oldest first
// per the requested direction. Transaction queries return only the matching
// transactions of each block.
type Page struct {
	Blocks      []BlockResult `json:"blocks"`
	LastTs      uint64        `json:"lastTs"`
	TotalPages  int           `json:"totalPages"`
	TotalBlocks int           `json:"totalBlocks,omitempty"`
}

// BlockResult is one block in a Page. BlockData is the hex-encoded block
// wire bytes and may be empty when details were not requested.
type BlockResult struct {
	BlockHash    string     `json:"blockHash"`
	BlockData    string     `json:"blockData,omitempty"`
	Ts           uint64     `json:"ts"`
	BlockSize    int        `json:"blockSize"`
	Transactions []TxResult `json:"transactions"`
}

// TxResult is one transaction in a BlockResult. TxnData is the hex-encoded
// transaction wire bytes.
type TxResult struct {
	TxnHash    string   `json:"txnHash"`
	BlockHash  string   `json:"blockHash"`
	Ts         uint64   `json:"ts"`
	Category   string   `json:"category"`
	From       string   `json:"from"`
	Recipients []string `json:"recipients"`
	TxnData    string   `json:"txnData"`
	Status     string   `json:"status"`
}

// Decode converts p to the model form, decoding every block and transaction
// through the codec. A BlockResult without BlockData yields a zero Block.
func (p Page) Decode() (model.BlockPage, error) {
	out := model.BlockPage{
		Blocks:      make([]model.BlockRecord, 0, len(p.Blocks)),
		LastTs:      p.LastTs,
		TotalPages:  p.TotalPages,
		TotalBlocks: p.TotalBlocks,
	}
	for _, b := range p.Blocks {
		rec := model.BlockRecord{
			Hash:         b.BlockHash,
			Timestamp:    b.Ts,
			Size:         b.BlockSize,
			Transactions: make([]model.TxRecord, 0, len(b.Transactions)),
		}
		if b.BlockData != "" {
			blk, err := codec.DeserializeBlockHex(b.BlockData)
			if err != nil {
				return model.BlockPage{}, err
			}
			rec.Block = blk
		}
		for _, t := range b.Transactions {
			tx, err := codec.DeserializeTxHex(t.TxnData)
			if err != nil {
				return model.BlockPage{}, err
			}
			rec.Transactions = append(rec.Transactions, model.TxRecord{
				Hash:      t.TxnHash,
				BlockHash: t.BlockHash,
				Timestamp: t.Ts,
				Status:    model.TxStatus(t.Status),
				Tx:        tx,
			})
		}
		out.Blocks = append(out.Blocks, rec)
	}
	return out, nil
}
