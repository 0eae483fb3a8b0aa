package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/bridge-tx-tracker/db"
	"github.com/omni/bridge-tx-tracker/entity"
)

type bridgeTransactionsRepo basePostgresRepo

func NewBridgeTransactionsRepo(table string, db *db.DB) entity.BridgeTransactionsRepo {
	return (*bridgeTransactionsRepo)(newBasePostgresRepo(table, db))
}

func (r *bridgeTransactionsRepo) Ensure(ctx context.Context, tx *entity.BridgeTransaction) error {
	q, args, err := sq.Insert(r.table).
		Columns("hash", "msg_hash", "src_chain_id", "dest_chain_id", "sender", "amount", "symbol", "decimals", "token_type", "msg_status", "block_number", "timestamp").
		Values(tx.Hash, tx.MsgHash, tx.SrcChainID, tx.DestChainID, tx.From, tx.Amount, tx.Symbol, tx.Decimals, tx.TokenType, tx.MsgStatus, tx.BlockNumber, tx.Timestamp).
		Suffix("ON CONFLICT (hash) DO UPDATE SET msg_hash = EXCLUDED.msg_hash, msg_status = EXCLUDED.msg_status, block_number = EXCLUDED.block_number, timestamp = EXCLUDED.timestamp, updated_at = NOW()").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert bridge transaction: %w", err)
	}
	return nil
}

func (r *bridgeTransactionsRepo) GetByHash(ctx context.Context, hash common.Hash) (*entity.BridgeTransaction, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"hash": hash}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	tx := new(entity.BridgeTransaction)
	err = r.db.GetContext(ctx, tx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get bridge transaction: %w", err)
	}
	return tx, nil
}

func (r *bridgeTransactionsRepo) FindByAddress(ctx context.Context, addr common.Address) ([]*entity.BridgeTransaction, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"sender": addr}).
		OrderBy("created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	txs := make([]*entity.BridgeTransaction, 0, 10)
	err = r.db.SelectContext(ctx, &txs, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get bridge transactions by sender: %w", err)
	}
	return txs, nil
}

func (r *bridgeTransactionsRepo) FindByStatus(ctx context.Context, statuses ...entity.MessageStatus) ([]*entity.BridgeTransaction, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"msg_status": statuses}).
		OrderBy("created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	txs := make([]*entity.BridgeTransaction, 0, 10)
	err = r.db.SelectContext(ctx, &txs, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get bridge transactions by status: %w", err)
	}
	return txs, nil
}

func (r *bridgeTransactionsRepo) DeleteByHashes(ctx context.Context, addr common.Address, hashes ...common.Hash) error {
	if len(hashes) == 0 {
		return nil
	}
	q, args, err := sq.Delete(r.table).
		Where(sq.Eq{"sender": addr, "hash": hashes}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't delete bridge transactions: %w", err)
	}
	return nil
}
