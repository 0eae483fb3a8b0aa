package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/logging"
	"github.com/omni/bridge-tx-tracker/relayer"
)

const subscriberBuffer = 32

var ErrAlreadyDone = errors.New("message is already processed")

type StatusReader interface {
	MessageStatus(ctx context.Context, tx *entity.BridgeTransaction) (entity.MessageStatus, error)
}

type DelayReader interface {
	ProofReceipt(ctx context.Context, tx *entity.BridgeTransaction) (*entity.ProofReceipt, error)
	GetInvocationDelayForTx(ctx context.Context, tx *entity.BridgeTransaction) (*entity.RemainingDelays, error)
}

type BlockInfoReader interface {
	GetBlockInfo(ctx context.Context) (map[uint64]*relayer.BlockInfo, error)
}

type Readers struct {
	Status StatusReader
	Delays DelayReader
	Blocks BlockInfoReader
}

// Watcher polls the destination chain for the status of one bridge message until it is processed or stopped.
type Watcher struct {
	logger   logging.Logger
	readers  Readers
	interval time.Duration

	mu          sync.Mutex
	tx          entity.BridgeTransaction
	state       State
	receipt     *entity.ProofReceipt
	lastDelay   *time.Duration
	subscribers []chan Event
	cancel      context.CancelFunc
	started     bool
	done        chan struct{}
}

func NewWatcher(logger logging.Logger, tx *entity.BridgeTransaction, readers Readers, interval time.Duration) (*Watcher, error) {
	if !tx.HasMsgHash() {
		return nil, fmt.Errorf("can't watch tx %s: %w", tx.Hash, entity.ErrMissingMsgHash)
	}
	if tx.MsgStatus == entity.MessageStatusDone {
		return nil, fmt.Errorf("tx %s: %w", tx.Hash, ErrAlreadyDone)
	}
	return &Watcher{
		logger:   logger.WithField("tx_hash", tx.Hash),
		readers:  readers,
		interval: interval,
		tx:       *tx,
		state: State{
			TxHash:    tx.Hash,
			MsgHash:   tx.MsgHash,
			MsgStatus: tx.MsgStatus,
			UpdatedAt: time.Now(),
		},
		done: make(chan struct{}),
	}, nil
}

// Subscribe returns a channel receiving every following event. The channel is closed once the watcher stops.
// Events are dropped for subscribers that do not keep up.
func (w *Watcher) Subscribe() <-chan Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	select {
	case <-w.done:
		close(ch)
	default:
		w.subscribers = append(w.subscribers, ch)
	}
	return ch
}

func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Start launches the polling loop, the first poll happens immediately. Repeated calls are no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.state.Watching = true
	ActiveWatchers.Inc()
	go w.run(ctx)
}

// Stop terminates the polling loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, started := w.cancel, w.started
	w.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer w.finish()

	w.logger.Info("started watching message status")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		stop, err := w.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			PollResults.WithLabelValues("error").Inc()
			w.logger.WithError(err).Error("failed to poll message status")
			w.setError(err)
			w.emit(Event{Type: EventError, Err: err})
			return
		}
		PollResults.WithLabelValues("ok").Inc()
		if stop {
			w.logger.Info("message is processed, stopping")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Watcher) finish() {
	w.emit(Event{Type: EventStop})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Watching = false
	w.state.UpdatedAt = time.Now()
	for _, ch := range w.subscribers {
		close(ch)
	}
	w.subscribers = nil
	w.cancel()
	ActiveWatchers.Dec()
	close(w.done)
}

func (w *Watcher) poll(ctx context.Context) (bool, error) {
	processable := w.isProcessable(ctx)
	w.update(func(s *State) { s.Processable = processable })
	w.emit(Event{Type: EventProcessable, Processable: processable})

	tx := w.currentTx()
	status, err := w.readers.Status.MessageStatus(ctx, tx)
	if err != nil {
		return false, err
	}
	w.update(func(s *State) { s.MsgStatus = status })
	w.mu.Lock()
	w.tx.MsgStatus = status
	w.mu.Unlock()
	w.emit(Event{Type: EventStatus, Status: status})

	if w.receipt.IsZero() {
		receipt, err2 := w.readers.Delays.ProofReceipt(ctx, tx)
		if err2 != nil {
			return false, err2
		}
		if !receipt.IsZero() {
			w.receipt = receipt
			w.update(func(s *State) { s.ProofReceipt = receipt })
		}
	}

	if !w.receipt.IsZero() && (w.lastDelay == nil || *w.lastDelay > 0) {
		delays, err2 := w.readers.Delays.GetInvocationDelayForTx(ctx, tx)
		if err2 != nil {
			return false, err2
		}
		w.lastDelay = &delays.Preferred
		w.update(func(s *State) { s.Delays = delays })
		w.emit(Event{Type: EventDelay, Delays: delays})
	}

	return status == entity.MessageStatusDone, nil
}

// isProcessable reports whether the relayer has indexed the source block of the message,
// or the message already left the NEW status.
func (w *Watcher) isProcessable(ctx context.Context) bool {
	tx := w.currentTx()
	if !tx.HasMsgHash() || tx.BlockNumber == 0 {
		return false
	}
	if tx.MsgStatus != entity.MessageStatusNew {
		return true
	}
	if w.readers.Blocks == nil {
		return false
	}
	infos, err := w.readers.Blocks.GetBlockInfo(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("can't get relayer block info")
		return false
	}
	info, ok := infos[tx.SrcChainID]
	return ok && info.LatestProcessedBlock >= tx.BlockNumber
}

func (w *Watcher) currentTx() *entity.BridgeTransaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	tx := w.tx
	return &tx
}

func (w *Watcher) update(f func(s *State)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f(&w.state)
	w.state.UpdatedAt = time.Now()
}

func (w *Watcher) setError(err error) {
	w.update(func(s *State) { s.Error = err.Error() })
}

func (w *Watcher) emit(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e.TxHash = w.tx.Hash
	for _, ch := range w.subscribers {
		select {
		case ch <- e:
		default:
			w.logger.WithField("event", e.Type).Debug("subscriber is not keeping up, dropping event")
		}
	}
}
