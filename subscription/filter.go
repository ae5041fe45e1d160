package subscription

import (
	"slices"

	"xdao.co/xchain/model"
)

// Matches reports whether any transaction in blk satisfies any of filters.
// No filters matches everything.
//
// The validator is authoritative for filtering; this is only used for pushes
// that arrive without a subscription id.
func Matches(filters []model.Filter, blk model.Block) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Type == model.FilterWildcard {
			return true
		}
		for _, bt := range blk.Transactions {
			if matchTx(f, bt.Tx) {
				return true
			}
		}
	}
	return false
}

func matchTx(f model.Filter, tx model.Transaction) bool {
	switch f.Type {
	case model.FilterCategory:
		return slices.Contains(f.Value, tx.Category)
	case model.FilterFrom:
		return slices.Contains(f.Value, tx.Sender)
	case model.FilterRecipients:
		for _, r := range tx.Recipients {
			if slices.Contains(f.Value, r) {
				return true
			}
		}
		return false
	case model.FilterWildcard:
		return true
	default:
		return false
	}
}

// ValidFilter reports whether f is well formed.
func ValidFilter(f model.Filter) bool {
	switch f.Type {
	case model.FilterWildcard:
		return true
	case model.FilterCategory, model.FilterFrom, model.FilterRecipients:
		return len(f.Value) > 0
	default:
		return false
	}
}
