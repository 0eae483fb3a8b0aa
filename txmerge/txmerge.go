// Package txmerge reconciles locally submitted bridge transactions with the relayer list.
package txmerge

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/bridge-tx-tracker/entity"
)

type MergeResult struct {
	Merged        []*entity.BridgeTransaction
	OutdatedLocal []*entity.BridgeTransaction
}

// MergeAndCaptureOutdated drops local transactions already known to the relayer
// and appends the relayer ones after the remaining local entries.
// Relayer entries are authoritative. Inputs are not modified.
func MergeAndCaptureOutdated(localTxs, relayerTxs []*entity.BridgeTransaction) *MergeResult {
	known := make(map[common.Hash]struct{}, len(relayerTxs))
	for _, tx := range relayerTxs {
		known[tx.Hash] = struct{}{}
	}

	merged := make([]*entity.BridgeTransaction, 0, len(localTxs)+len(relayerTxs))
	outdated := make([]*entity.BridgeTransaction, 0)
	for _, tx := range localTxs {
		if _, ok := known[tx.Hash]; ok {
			outdated = append(outdated, tx)
		} else {
			merged = append(merged, tx)
		}
	}
	merged = append(merged, relayerTxs...)

	return &MergeResult{
		Merged:        Dedup(merged),
		OutdatedLocal: Dedup(outdated),
	}
}

// Dedup keeps one entry per transaction hash. The entry stays at the position of
// the first occurrence and takes the value of the last one.
func Dedup(txs []*entity.BridgeTransaction) []*entity.BridgeTransaction {
	index := make(map[common.Hash]int, len(txs))
	res := make([]*entity.BridgeTransaction, 0, len(txs))
	for _, tx := range txs {
		if i, ok := index[tx.Hash]; ok {
			res[i] = tx
			continue
		}
		index[tx.Hash] = len(res)
		res = append(res, tx)
	}
	return res
}
