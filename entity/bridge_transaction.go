package entity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type MessageStatus uint8

const (
	MessageStatusNew MessageStatus = iota
	MessageStatusRetriable
	MessageStatusDone
	MessageStatusFailed
)

func (s MessageStatus) String() string {
	switch s {
	case MessageStatusNew:
		return "NEW"
	case MessageStatusRetriable:
		return "RETRIABLE"
	case MessageStatusDone:
		return "DONE"
	case MessageStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

type BridgeTransaction struct {
	Hash        common.Hash     `db:"hash" json:"hash"`
	MsgHash     common.Hash     `db:"msg_hash" json:"msgHash"`
	SrcChainID  uint64          `db:"src_chain_id" json:"srcChainId"`
	DestChainID uint64          `db:"dest_chain_id" json:"destChainId"`
	From        common.Address  `db:"sender" json:"from"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Symbol      string          `db:"symbol" json:"symbol"`
	Decimals    uint8           `db:"decimals" json:"decimals"`
	TokenType   TokenType       `db:"token_type" json:"tokenType"`
	MsgStatus   MessageStatus   `db:"msg_status" json:"msgStatus"`
	BlockNumber uint64          `db:"block_number" json:"blockNumber"`
	Timestamp   *time.Time      `db:"timestamp" json:"timestamp,omitempty"`
	CreatedAt   *time.Time      `db:"created_at" json:"-"`
	UpdatedAt   *time.Time      `db:"updated_at" json:"-"`
}

func (tx *BridgeTransaction) HasMsgHash() bool {
	return tx.MsgHash != (common.Hash{})
}

type BridgeTransactionsRepo interface {
	Ensure(ctx context.Context, tx *BridgeTransaction) error
	GetByHash(ctx context.Context, hash common.Hash) (*BridgeTransaction, error)
	FindByAddress(ctx context.Context, addr common.Address) ([]*BridgeTransaction, error)
	FindByStatus(ctx context.Context, statuses ...MessageStatus) ([]*BridgeTransaction, error)
	DeleteByHashes(ctx context.Context, addr common.Address, hashes ...common.Hash) error
}
