package delay

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/bridge-tx-tracker/config"
	"github.com/omni/bridge-tx-tracker/contract"
	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/ethclient"
	"github.com/omni/bridge-tx-tracker/logging"
)

type chainPair struct {
	src  uint64
	dest uint64
}

// Calculator reports how long each claimer tier still has to wait before a proven message can be processed.
type Calculator struct {
	logger  logging.Logger
	clients ethclient.Clients
	routing config.Routing
	cache   *expirable.LRU[chainPair, *entity.InvocationDelays]
}

func NewCalculator(logger logging.Logger, clients ethclient.Clients, routing config.Routing, cfg *config.DelayConfig) *Calculator {
	return &Calculator{
		logger:  logger,
		clients: clients,
		routing: routing,
		cache:   expirable.NewLRU[chainPair, *entity.InvocationDelays](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// destBridge returns the bridge on the destination chain that accepts messages from the source chain.
func (c *Calculator) destBridge(srcChainID, destChainID uint64) (*contract.BridgeContract, ethclient.Client, error) {
	route, err := c.routing.Get(destChainID, srcChainID)
	if err != nil {
		return nil, nil, err
	}
	client, err := c.clients.Get(destChainID)
	if err != nil {
		return nil, nil, err
	}
	return contract.NewBridgeContract(client, route.BridgeAddress), client, nil
}

// GetInvocationDelays returns the delay configuration of the destination bridge, served from cache when fresh.
func (c *Calculator) GetInvocationDelays(ctx context.Context, srcChainID, destChainID uint64) (*entity.InvocationDelays, error) {
	key := chainPair{src: srcChainID, dest: destChainID}
	src, dest := strconv.FormatUint(srcChainID, 10), strconv.FormatUint(destChainID, 10)
	if delays, ok := c.cache.Get(key); ok {
		CacheRequests.WithLabelValues(src, dest, "hit").Inc()
		return delays, nil
	}
	CacheRequests.WithLabelValues(src, dest, "miss").Inc()

	bridge, _, err := c.destBridge(srcChainID, destChainID)
	if err != nil {
		return nil, err
	}
	delays, err := bridge.InvocationDelays(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, delays)
	return delays, nil
}

func (c *Calculator) ProofReceipt(ctx context.Context, tx *entity.BridgeTransaction) (*entity.ProofReceipt, error) {
	if !tx.HasMsgHash() {
		return nil, fmt.Errorf("tx %s: %w", tx.Hash, entity.ErrMissingMsgHash)
	}
	bridge, _, err := c.destBridge(tx.SrcChainID, tx.DestChainID)
	if err != nil {
		return nil, err
	}
	return bridge.ProofReceipt(ctx, tx.MsgHash)
}

// GetInvocationDelayForTx computes delay minus the time elapsed since the message was proven.
// The result is meaningless for unproven messages, callers are expected to check ProofReceipt first.
func (c *Calculator) GetInvocationDelayForTx(ctx context.Context, tx *entity.BridgeTransaction) (*entity.RemainingDelays, error) {
	if !tx.HasMsgHash() {
		return nil, fmt.Errorf("tx %s: %w", tx.Hash, entity.ErrMissingMsgHash)
	}
	bridge, client, err := c.destBridge(tx.SrcChainID, tx.DestChainID)
	if err != nil {
		return nil, err
	}

	var (
		delays  *entity.InvocationDelays
		latest  *types.Header
		receipt *entity.ProofReceipt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		delays, err = c.GetInvocationDelays(gctx, tx.SrcChainID, tx.DestChainID)
		return err
	})
	g.Go(func() (err error) {
		latest, err = client.LatestHeader(gctx)
		return err
	})
	g.Go(func() (err error) {
		receipt, err = bridge.ProofReceipt(gctx, tx.MsgHash)
		return err
	})
	if err = g.Wait(); err != nil {
		return nil, fmt.Errorf("can't get invocation delay for tx %s: %w", tx.Hash, err)
	}

	elapsed := time.Duration(int64(latest.Time)-int64(receipt.ReceivedAt)) * time.Second
	res := &entity.RemainingDelays{
		Preferred:    delays.Preferred - elapsed,
		NotPreferred: delays.NotPreferred - elapsed,
	}
	c.logger.WithFields(logrus.Fields{
		"tx_hash":       tx.Hash,
		"msg_hash":      tx.MsgHash,
		"latest_time":   latest.Time,
		"received_at":   receipt.ReceivedAt,
		"preferred":     res.Preferred,
		"not_preferred": res.NotPreferred,
	}).Debug("computed remaining invocation delays")
	return res, nil
}
