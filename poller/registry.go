package poller

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/bridge-tx-tracker/config"
	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/logging"
)

// Registry runs at most one watcher per transaction and remembers the last state of finished ones.
type Registry struct {
	logger  logging.Logger
	readers Readers
	cfg     *config.PollerConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	watchers map[common.Hash]*Watcher
}

func NewRegistry(logger logging.Logger, readers Readers, cfg *config.PollerConfig) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		logger:   logger,
		readers:  readers,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		watchers: make(map[common.Hash]*Watcher),
	}
}

// Watch returns the running watcher of the transaction, starting a new one if there is none.
func (r *Registry) Watch(tx *entity.BridgeTransaction) (*Watcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.watchers[tx.Hash]; ok {
		select {
		case <-w.Done():
		default:
			return w, nil
		}
	}
	if r.ctx.Err() != nil {
		return nil, r.ctx.Err()
	}

	w, err := NewWatcher(r.logger, tx, r.readers, r.cfg.Interval)
	if err != nil {
		return nil, err
	}
	r.watchers[tx.Hash] = w
	w.Start(r.ctx)
	return w, nil
}

// WatchAll starts watchers for every transaction whose message is not processed yet.
func (r *Registry) WatchAll(txs []*entity.BridgeTransaction) {
	for _, tx := range txs {
		if _, err := r.Watch(tx); err != nil && !errors.Is(err, ErrAlreadyDone) {
			r.logger.WithError(err).WithField("tx_hash", tx.Hash).Debug("can't watch transaction")
		}
	}
}

func (r *Registry) State(txHash common.Hash) (State, bool) {
	r.mu.Lock()
	w, ok := r.watchers[txHash]
	r.mu.Unlock()
	if !ok {
		return State{}, false
	}
	return w.State(), true
}

// StopAll stops every watcher and waits for them to exit. Watch fails afterwards.
func (r *Registry) StopAll() {
	r.cancel()

	r.mu.Lock()
	watchers := make([]*Watcher, 0, len(r.watchers))
	for _, w := range r.watchers {
		watchers = append(watchers, w)
	}
	r.mu.Unlock()

	for _, w := range watchers {
		<-w.Done()
	}
	r.logger.WithField("count", len(watchers)).Info("stopped all message watchers")
}
