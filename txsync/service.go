package txsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/bridge-tx-tracker/config"
	"github.com/omni/bridge-tx-tracker/contract"
	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/ethclient"
	"github.com/omni/bridge-tx-tracker/logging"
	"github.com/omni/bridge-tx-tracker/relayer"
	"github.com/omni/bridge-tx-tracker/txmerge"
	"github.com/omni/bridge-tx-tracker/utils"
)

const maxConcurrentStatusReads = 8

type RelayerClient interface {
	PageSize() uint
	GetAllBridgeTransactionsByAddress(ctx context.Context, addr common.Address, pagination relayer.PaginationParams, chainID uint64) ([]*entity.BridgeTransaction, *relayer.PaginationInfo, error)
}

// Service keeps locally submitted transactions in sync with the relayer view.
type Service struct {
	logger  logging.Logger
	repo    entity.BridgeTransactionsRepo
	relayer RelayerClient
	clients ethclient.Clients
	routing config.Routing
	cfg     *config.SyncConfig
}

func NewService(logger logging.Logger, repo entity.BridgeTransactionsRepo, relayerClient RelayerClient, clients ethclient.Clients, routing config.Routing, cfg *config.SyncConfig) *Service {
	return &Service{
		logger:  logger,
		repo:    repo,
		relayer: relayerClient,
		clients: clients,
		routing: routing,
		cfg:     cfg,
	}
}

// AddLocalTransaction stores a transaction submitted by the user before the relayer indexed it.
func (s *Service) AddLocalTransaction(ctx context.Context, tx *entity.BridgeTransaction) (*entity.BridgeTransaction, error) {
	if tx.Hash == (common.Hash{}) {
		return nil, fmt.Errorf("transaction hash is required: %w", entity.ErrPrecondition)
	}
	if tx.From == (common.Address{}) {
		return nil, fmt.Errorf("sender is required: %w", entity.ErrPrecondition)
	}
	if _, err := s.routing.Get(tx.SrcChainID, tx.DestChainID); err != nil {
		return nil, err
	}

	logger := s.logger.WithField("tx_hash", tx.Hash)
	enhanced, err := s.EnhanceLocal(ctx, tx)
	if err != nil {
		logger.WithError(err).Warn("can't enhance local transaction, storing as is")
		enhanced = tx
	}
	if err = s.repo.Ensure(ctx, enhanced); err != nil {
		return nil, fmt.Errorf("can't save local transaction: %w", err)
	}
	logger.WithField("msg_hash", enhanced.MsgHash).Info("stored local bridge transaction")
	return enhanced, nil
}

// EnhanceLocal returns a copy of tx with the message hash, block number and block time taken from the
// source chain and the status taken from the destination bridge. Unmined transactions are returned unchanged.
func (s *Service) EnhanceLocal(ctx context.Context, tx *entity.BridgeTransaction) (*entity.BridgeTransaction, error) {
	res := *tx
	if !res.HasMsgHash() || res.BlockNumber == 0 {
		client, err := s.clients.Get(res.SrcChainID)
		if err != nil {
			return nil, err
		}
		receipt, err := client.TransactionReceiptByHash(ctx, res.Hash)
		if errors.Is(err, ethereum.NotFound) {
			s.logger.WithField("tx_hash", res.Hash).Debug("transaction is not mined yet")
			return &res, nil
		}
		if err != nil {
			return nil, err
		}
		res.BlockNumber = receipt.BlockNumber.Uint64()

		if !res.HasMsgHash() {
			route, err2 := s.routing.Get(res.SrcChainID, res.DestChainID)
			if err2 != nil {
				return nil, err2
			}
			sent, err2 := contract.NewBridgeContract(client, route.BridgeAddress).FindMessageSent(receipt, res.From)
			if err2 != nil {
				return nil, fmt.Errorf("tx %s: %w", res.Hash, err2)
			}
			res.MsgHash = sent.MsgHash
		}
	}
	if res.Timestamp == nil && res.BlockNumber != 0 {
		s.fillTimestamp(ctx, &res)
	}

	status, err := s.MessageStatus(ctx, &res)
	if err != nil {
		return nil, err
	}
	res.MsgStatus = status
	return &res, nil
}

// fillTimestamp sets the source block time. Failures leave the timestamp empty for a later refresh.
func (s *Service) fillTimestamp(ctx context.Context, tx *entity.BridgeTransaction) {
	logger := s.logger.WithFields(logrus.Fields{
		"tx_hash":      tx.Hash,
		"block_number": tx.BlockNumber,
	})
	client, err := s.clients.Get(tx.SrcChainID)
	if err != nil {
		logger.WithError(err).Warn("can't get block timestamp")
		return
	}
	header, err := client.HeaderByNumber(ctx, uint(tx.BlockNumber))
	if err != nil {
		logger.WithError(err).Warn("can't get block timestamp")
		return
	}
	ts := time.Unix(int64(header.Time), 0).UTC()
	tx.Timestamp = &ts
}

// MessageStatus reads the status of the transaction message from the destination bridge.
func (s *Service) MessageStatus(ctx context.Context, tx *entity.BridgeTransaction) (entity.MessageStatus, error) {
	if !tx.HasMsgHash() {
		return 0, fmt.Errorf("tx %s: %w", tx.Hash, entity.ErrMissingMsgHash)
	}
	route, err := s.routing.Get(tx.DestChainID, tx.SrcChainID)
	if err != nil {
		return 0, err
	}
	client, err := s.clients.Get(tx.DestChainID)
	if err != nil {
		return 0, err
	}
	return contract.NewBridgeContract(client, route.BridgeAddress).MessageStatus(ctx, tx.MsgHash)
}

// FetchRelayerTransactions walks every relayer page for addr and refreshes message statuses on chain.
func (s *Service) FetchRelayerTransactions(ctx context.Context, addr common.Address) ([]*entity.BridgeTransaction, error) {
	var txs []*entity.BridgeTransaction
	for page := uint(0); ; page++ {
		pageTxs, info, err := s.relayer.GetAllBridgeTransactionsByAddress(ctx, addr, relayer.PaginationParams{Page: page, Size: s.relayer.PageSize()}, 0)
		if err != nil {
			return nil, err
		}
		txs = append(txs, pageTxs...)
		if info.Last || uint64(page)+1 >= info.TotalPages {
			break
		}
	}

	refreshed := make([]*entity.BridgeTransaction, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentStatusReads)
	for i, tx := range txs {
		i, tx := i, tx
		if !tx.HasMsgHash() || tx.MsgStatus == entity.MessageStatusDone {
			refreshed[i] = tx
			continue
		}
		g.Go(func() error {
			status, err := s.MessageStatus(gctx, tx)
			if err != nil {
				return err
			}
			updated := *tx
			updated.MsgStatus = status
			refreshed[i] = &updated
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("can't refresh message statuses: %w", err)
	}
	return refreshed, nil
}

// Reconcile merges stored transactions of addr with the relayer ones, drops the local
// entries the relayer superseded and returns the merged view, NEW messages first.
func (s *Service) Reconcile(ctx context.Context, addr common.Address) ([]*entity.BridgeTransaction, error) {
	timer := prometheus.NewTimer(ReconcileDurations)
	defer timer.ObserveDuration()

	res, err := s.reconcile(ctx, addr)
	if err != nil {
		ReconcileResults.WithLabelValues("error").Inc()
		return nil, err
	}
	ReconcileResults.WithLabelValues("ok").Inc()
	return res, nil
}

func (s *Service) reconcile(ctx context.Context, addr common.Address) ([]*entity.BridgeTransaction, error) {
	logger := s.logger.WithField("address", addr)

	local, err := s.repo.FindByAddress(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("can't load local transactions: %w", err)
	}
	relayerTxs, err := s.FetchRelayerTransactions(ctx, addr)
	if err != nil {
		return nil, err
	}

	merged := txmerge.MergeAndCaptureOutdated(local, relayerTxs)
	if len(merged.OutdatedLocal) > 0 {
		hashes := make([]common.Hash, len(merged.OutdatedLocal))
		for i, tx := range merged.OutdatedLocal {
			hashes[i] = tx.Hash
		}
		if err = s.repo.DeleteByHashes(ctx, addr, hashes...); err != nil {
			return nil, fmt.Errorf("can't delete outdated local transactions: %w", err)
		}
		OutdatedDeleted.Add(float64(len(hashes)))
	}

	logger.WithFields(logrus.Fields{
		"local":    len(local),
		"relayer":  len(relayerTxs),
		"merged":   len(merged.Merged),
		"outdated": len(merged.OutdatedLocal),
	}).Info("reconciled bridge transactions")
	return SortTransactions(merged.Merged), nil
}

// RefreshStatuses re-enhances every stored transaction whose message is not final and saves the changes.
// A transaction that can't be refreshed is skipped, the failures are joined into the returned error.
func (s *Service) RefreshStatuses(ctx context.Context) (int, error) {
	txs, err := s.repo.FindByStatus(ctx, entity.MessageStatusNew, entity.MessageStatusRetriable)
	if err != nil {
		return 0, fmt.Errorf("can't load pending transactions: %w", err)
	}
	updated := 0
	var errs []error
	for _, tx := range txs {
		logger := s.logger.WithField("tx_hash", tx.Hash)
		enhanced, err2 := s.EnhanceLocal(ctx, tx)
		if err2 != nil {
			logger.WithError(err2).Warn("can't refresh transaction, skipping")
			RefreshResults.WithLabelValues("error").Inc()
			errs = append(errs, fmt.Errorf("can't refresh tx %s: %w", tx.Hash, err2))
			continue
		}
		if !changed(tx, enhanced) {
			RefreshResults.WithLabelValues("unchanged").Inc()
			continue
		}
		if err2 = s.repo.Ensure(ctx, enhanced); err2 != nil {
			logger.WithError(err2).Error("can't save refreshed transaction")
			RefreshResults.WithLabelValues("error").Inc()
			errs = append(errs, fmt.Errorf("can't save tx %s: %w", tx.Hash, err2))
			continue
		}
		logger.WithFields(logrus.Fields{
			"old_status": tx.MsgStatus,
			"new_status": enhanced.MsgStatus,
		}).Info("updated message status")
		RefreshResults.WithLabelValues("updated").Inc()
		updated++
	}
	return updated, errors.Join(errs...)
}

func changed(old, tx *entity.BridgeTransaction) bool {
	return old.MsgStatus != tx.MsgStatus ||
		old.MsgHash != tx.MsgHash ||
		old.BlockNumber != tx.BlockNumber ||
		(old.Timestamp == nil) != (tx.Timestamp == nil)
}

// Start reconciles every configured address on each interval until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	for {
		for _, addr := range s.cfg.Addresses {
			s.reconcileWithTimeout(ctx, addr)
		}
		if utils.ContextSleep(ctx, s.cfg.Interval) == nil {
			s.logger.Info("stopping reconciliation")
			return
		}
	}
}

func (s *Service) reconcileWithTimeout(ctx context.Context, addr common.Address) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if _, err := s.Reconcile(ctx, addr); err != nil {
		s.logger.WithError(err).WithField("address", addr).Error("failed to reconcile bridge transactions, will retry")
	}
}

// SortTransactions returns a copy of txs with NEW messages first, newer blocks first within the same group.
func SortTransactions(txs []*entity.BridgeTransaction) []*entity.BridgeTransaction {
	res := append([]*entity.BridgeTransaction(nil), txs...)
	sort.SliceStable(res, func(i, j int) bool {
		iNew, jNew := res[i].MsgStatus == entity.MessageStatusNew, res[j].MsgStatus == entity.MessageStatusNew
		if iNew != jNew {
			return iNew
		}
		return res[i].BlockNumber > res[j].BlockNumber
	})
	return res
}
