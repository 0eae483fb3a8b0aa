package presenter

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/bridge-tx-tracker/entity"
)

type TransactionsResult struct {
	Address      common.Address              `json:"address"`
	Transactions []*entity.BridgeTransaction `json:"transactions"`
}

type FeeResult struct {
	Symbol      string `json:"symbol"`
	SrcChainID  uint64 `json:"srcChainId,omitempty"`
	DestChainID uint64 `json:"destChainId"`
	Wei         string `json:"wei"`
	Ether       string `json:"ether"`
}

type QuotaResult struct {
	Symbol         string `json:"symbol"`
	SrcChainID     uint64 `json:"srcChainId"`
	DestChainID    uint64 `json:"destChainId"`
	Amount         string `json:"amount"`
	HasEnoughQuota bool   `json:"hasEnoughQuota"`
}

// DelayResult reports remaining delays in seconds. Delays are only set for proven messages.
type DelayResult struct {
	MsgHash           common.Hash     `json:"msgHash"`
	SrcChainID        uint64          `json:"srcChainId"`
	DestChainID       uint64          `json:"destChainId"`
	Proven            bool            `json:"proven"`
	ReceivedAt        uint64          `json:"receivedAt,omitempty"`
	PreferredExecutor *common.Address `json:"preferredExecutor,omitempty"`
	Preferred         *int64          `json:"preferredDelay,omitempty"`
	NotPreferred      *int64          `json:"notPreferredDelay,omitempty"`
}
