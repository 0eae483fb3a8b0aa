package presenter

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/omni/bridge-tx-tracker/db"
	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/logging"
	"github.com/omni/bridge-tx-tracker/poller"
	mw "github.com/omni/bridge-tx-tracker/presenter/http/middleware"
	"github.com/omni/bridge-tx-tracker/presenter/http/render"
	"github.com/omni/bridge-tx-tracker/relayer"
)

const maxConcurrentRequests = 5

type TxService interface {
	Reconcile(ctx context.Context, addr common.Address) ([]*entity.BridgeTransaction, error)
	AddLocalTransaction(ctx context.Context, tx *entity.BridgeTransaction) (*entity.BridgeTransaction, error)
}

type FeeEstimator interface {
	RecommendFee(ctx context.Context, token *entity.Token, destChainID, srcChainID uint64) (*big.Int, error)
}

type QuotaChecker interface {
	HasEnoughQuota(ctx context.Context, token *entity.Token, srcChainID, destChainID uint64, amount *big.Int) bool
}

type DelayCalculator interface {
	ProofReceipt(ctx context.Context, tx *entity.BridgeTransaction) (*entity.ProofReceipt, error)
	GetInvocationDelayForTx(ctx context.Context, tx *entity.BridgeTransaction) (*entity.RemainingDelays, error)
}

type Watchers interface {
	WatchAll(txs []*entity.BridgeTransaction)
	State(txHash common.Hash) (poller.State, bool)
}

type RelayerFees interface {
	RecommendedProcessingFees(ctx context.Context, typeFilter relayer.FeeType, destChainID uint64) ([]*relayer.Fee, error)
}

type Services struct {
	Transactions TxService
	Fees         FeeEstimator
	Quotas       QuotaChecker
	Delays       DelayCalculator
	Watchers     Watchers
	RelayerFees  RelayerFees
}

type Presenter struct {
	logger   logging.Logger
	services Services
	tokens   map[string]*entity.Token
	root     chi.Router
}

func NewPresenter(logger logging.Logger, services Services, tokens map[string]*entity.Token) *Presenter {
	p := &Presenter{
		logger:   logger,
		services: services,
		tokens:   tokens,
		root:     chi.NewMux(),
	}
	p.routes()
	return p
}

func (p *Presenter) routes() {
	p.root.Use(middleware.Throttle(maxConcurrentRequests))
	p.root.Use(middleware.RequestID)
	p.root.Use(mw.NewLoggerMiddleware(p.logger))
	p.root.Use(mw.Recoverer)

	p.root.Route("/address/{address}/transactions", func(r chi.Router) {
		r.Use(mw.GetAddressMiddleware)
		r.Get("/", p.wrapJSONHandler(http.StatusOK, p.GetTransactions))
		r.Post("/", p.wrapJSONHandler(http.StatusCreated, p.AddTransaction))
	})
	p.root.With(mw.GetTokenMiddleware(p.tokens), mw.GetChainPairMiddleware).
		Get("/fee/{symbol}", p.wrapJSONHandler(http.StatusOK, p.GetFee))
	p.root.With(mw.GetTokenMiddleware(p.tokens), mw.GetChainPairMiddleware).
		Get("/quota/{symbol}", p.wrapJSONHandler(http.StatusOK, p.GetQuota))
	p.root.With(mw.GetChainPairMiddleware, mw.GetHashMiddleware("msgHash")).
		Get("/delay/{srcChainID:[0-9]+}/{destChainID:[0-9]+}/{msgHash:0x[0-9a-fA-F]{64}}", p.wrapJSONHandler(http.StatusOK, p.GetDelay))
	p.root.With(mw.GetHashMiddleware("txHash")).
		Get("/tx/{txHash:0x[0-9a-fA-F]{64}}/status", p.wrapJSONHandler(http.StatusOK, p.GetTxStatus))
	p.root.Get("/relayer/fees", p.wrapJSONHandler(http.StatusOK, p.GetRelayerFees))
}

func (p *Presenter) Handler() http.Handler {
	return p.root
}

func (p *Presenter) Serve(addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	return http.ListenAndServe(addr, p.root)
}

func (p *Presenter) wrapJSONHandler(status int, handler func(r *http.Request) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			render.Error(w, r, err)
			return
		}
		render.JSON(w, r, status, res)
	}
}

// GetTransactions returns the reconciled view of the address and starts watching its pending messages.
func (p *Presenter) GetTransactions(r *http.Request) (interface{}, error) {
	ctx := r.Context()
	addr := mw.Address(ctx)

	txs, err := p.services.Transactions.Reconcile(ctx, addr)
	if err != nil {
		return nil, err
	}
	p.services.Watchers.WatchAll(txs)
	return &TransactionsResult{Address: addr, Transactions: txs}, nil
}

func (p *Presenter) AddTransaction(r *http.Request) (interface{}, error) {
	ctx := r.Context()
	addr := mw.Address(ctx)

	tx := new(entity.BridgeTransaction)
	if err := json.NewDecoder(r.Body).Decode(tx); err != nil {
		return nil, fmt.Errorf("can't decode transaction: %w: %w", entity.ErrPrecondition, err)
	}
	if tx.From != (common.Address{}) && tx.From != addr {
		return nil, fmt.Errorf("sender %s does not match address %s: %w", tx.From, addr, entity.ErrPrecondition)
	}
	tx.From = addr

	return p.services.Transactions.AddLocalTransaction(ctx, tx)
}

func (p *Presenter) GetFee(r *http.Request) (interface{}, error) {
	ctx := r.Context()
	token := mw.Token(ctx)
	pair := mw.GetChainPair(ctx)

	fee, err := p.services.Fees.RecommendFee(ctx, token, pair.DestChainID, pair.SrcChainID)
	if err != nil {
		return nil, err
	}
	return &FeeResult{
		Symbol:      token.Symbol,
		SrcChainID:  pair.SrcChainID,
		DestChainID: pair.DestChainID,
		Wei:         fee.String(),
		Ether:       decimal.NewFromBigInt(fee, -18).String(),
	}, nil
}

func (p *Presenter) GetQuota(r *http.Request) (interface{}, error) {
	ctx := r.Context()
	token := mw.Token(ctx)
	pair := mw.GetChainPair(ctx)

	if pair.SrcChainID == 0 {
		return nil, fmt.Errorf("source chain id is required: %w", entity.ErrPrecondition)
	}
	rawAmount := r.URL.Query().Get("amount")
	amount, ok := new(big.Int).SetString(rawAmount, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q: %w", rawAmount, entity.ErrPrecondition)
	}

	return &QuotaResult{
		Symbol:         token.Symbol,
		SrcChainID:     pair.SrcChainID,
		DestChainID:    pair.DestChainID,
		Amount:         amount.String(),
		HasEnoughQuota: p.services.Quotas.HasEnoughQuota(ctx, token, pair.SrcChainID, pair.DestChainID, amount),
	}, nil
}

func (p *Presenter) GetDelay(r *http.Request) (interface{}, error) {
	ctx := r.Context()
	pair := mw.GetChainPair(ctx)
	tx := &entity.BridgeTransaction{
		MsgHash:     mw.Hash(ctx),
		SrcChainID:  pair.SrcChainID,
		DestChainID: pair.DestChainID,
	}
	res := &DelayResult{
		MsgHash:     tx.MsgHash,
		SrcChainID:  tx.SrcChainID,
		DestChainID: tx.DestChainID,
	}

	receipt, err := p.services.Delays.ProofReceipt(ctx, tx)
	if err != nil {
		return nil, err
	}
	if receipt.IsZero() {
		return res, nil
	}
	delays, err := p.services.Delays.GetInvocationDelayForTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	preferred := int64(delays.Preferred.Seconds())
	notPreferred := int64(delays.NotPreferred.Seconds())
	res.Proven = true
	res.ReceivedAt = receipt.ReceivedAt
	res.PreferredExecutor = &receipt.PreferredExecutor
	res.Preferred = &preferred
	res.NotPreferred = &notPreferred
	return res, nil
}

func (p *Presenter) GetTxStatus(r *http.Request) (interface{}, error) {
	txHash := mw.Hash(r.Context())

	state, ok := p.services.Watchers.State(txHash)
	if !ok {
		return nil, fmt.Errorf("transaction %s is not watched: %w", txHash, db.ErrNotFound)
	}
	return state, nil
}

func (p *Presenter) GetRelayerFees(r *http.Request) (interface{}, error) {
	query := r.URL.Query()

	feeType := relayer.FeeType(query.Get("type"))
	switch feeType {
	case "", relayer.FeeTypeETH, relayer.FeeTypeERC20, relayer.FeeTypeERC721, relayer.FeeTypeERC1155:
	default:
		return nil, fmt.Errorf("unknown fee type %q: %w", feeType, entity.ErrPrecondition)
	}
	var destChainID uint64
	if raw := query.Get("dest"); raw != "" {
		var err error
		if destChainID, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid dest %q: %w", raw, entity.ErrPrecondition)
		}
	}

	return p.services.RelayerFees.RecommendedProcessingFees(r.Context(), feeType, destChainID)
}
