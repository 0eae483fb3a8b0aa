package presenter_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/poller"
	"github.com/omni/bridge-tx-tracker/presenter"
	"github.com/omni/bridge-tx-tracker/relayer"
)

const (
	l1 uint64 = 1
	l2 uint64 = 167000
)

var (
	user    = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	txHash  = common.HexToHash("0x01")
	msgHash = common.HexToHash("0x02")

	tokens = map[string]*entity.Token{
		"ETH": {Name: "Ether", Symbol: "ETH", Decimals: 18, Type: entity.TokenTypeETH},
		"USDC": {
			Name: "USD Coin", Symbol: "USDC", Decimals: 6, Type: entity.TokenTypeERC20,
			Addresses: map[uint64]common.Address{l1: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")},
		},
	}
)

type fakeTxService struct {
	txs   []*entity.BridgeTransaction
	err   error
	added *entity.BridgeTransaction
}

func (f *fakeTxService) Reconcile(_ context.Context, _ common.Address) ([]*entity.BridgeTransaction, error) {
	return f.txs, f.err
}

func (f *fakeTxService) AddLocalTransaction(_ context.Context, tx *entity.BridgeTransaction) (*entity.BridgeTransaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.added = tx
	return tx, nil
}

type fakeFees struct {
	fee *big.Int
	err error
}

func (f *fakeFees) RecommendFee(_ context.Context, token *entity.Token, _, srcChainID uint64) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !token.IsNative() && srcChainID == 0 {
		return nil, entity.ErrMissingSourceChain
	}
	return f.fee, nil
}

type fakeQuotas struct {
	available *big.Int
}

func (f *fakeQuotas) HasEnoughQuota(_ context.Context, _ *entity.Token, _, _ uint64, amount *big.Int) bool {
	return f.available.Cmp(amount) >= 0
}

type fakeDelays struct {
	receipt *entity.ProofReceipt
	delays  *entity.RemainingDelays
	err     error
}

func (f *fakeDelays) ProofReceipt(_ context.Context, _ *entity.BridgeTransaction) (*entity.ProofReceipt, error) {
	return f.receipt, f.err
}

func (f *fakeDelays) GetInvocationDelayForTx(_ context.Context, _ *entity.BridgeTransaction) (*entity.RemainingDelays, error) {
	return f.delays, f.err
}

type fakeWatchers struct {
	mu      sync.Mutex
	watched []*entity.BridgeTransaction
	states  map[common.Hash]poller.State
}

func (f *fakeWatchers) WatchAll(txs []*entity.BridgeTransaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched = append(f.watched, txs...)
}

func (f *fakeWatchers) State(hash common.Hash) (poller.State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[hash]
	return state, ok
}

type fakeRelayerFees struct {
	fees []*relayer.Fee
}

func (f *fakeRelayerFees) RecommendedProcessingFees(_ context.Context, typeFilter relayer.FeeType, destChainID uint64) ([]*relayer.Fee, error) {
	res := make([]*relayer.Fee, 0, len(f.fees))
	for _, fee := range f.fees {
		if (typeFilter == "" || fee.Type == typeFilter) && (destChainID == 0 || fee.DestChainID == destChainID) {
			res = append(res, fee)
		}
	}
	return res, nil
}

func newServices() presenter.Services {
	return presenter.Services{
		Transactions: &fakeTxService{},
		Fees:         &fakeFees{fee: new(big.Int).Mul(big.NewInt(9_000_000), big.NewInt(1_000_000_000))},
		Quotas:       &fakeQuotas{available: big.NewInt(1_000)},
		Delays:       &fakeDelays{},
		Watchers:     &fakeWatchers{states: make(map[common.Hash]poller.State)},
		RelayerFees:  &fakeRelayerFees{},
	}
}

func serve(t *testing.T, services presenter.Services, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	logger, _ := logtest.NewNullLogger()
	p := presenter.NewPresenter(logger, services, tokens)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, res interface{}) {
	t.Helper()

	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), res))
}

func TestPresenter_GetTransactions(t *testing.T) {
	t.Parallel()

	t.Run("returns reconciled transactions and watches them", func(t *testing.T) {
		t.Parallel()
		services := newServices()
		txs := []*entity.BridgeTransaction{
			{Hash: txHash, From: user, SrcChainID: l1, DestChainID: l2, Amount: decimal.NewFromInt(5), MsgStatus: entity.MessageStatusNew},
		}
		services.Transactions = &fakeTxService{txs: txs}

		rec := serve(t, services, http.MethodGet, "/address/"+user.Hex()+"/transactions", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var res presenter.TransactionsResult
		decode(t, rec, &res)
		require.Equal(t, user, res.Address)
		require.Len(t, res.Transactions, 1)
		require.Equal(t, txHash, res.Transactions[0].Hash)
		require.Equal(t, txs, services.Watchers.(*fakeWatchers).watched)
	})

	t.Run("rejects invalid address", func(t *testing.T) {
		t.Parallel()
		rec := serve(t, newServices(), http.MethodGet, "/address/0x123/transactions", "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps network errors to bad gateway", func(t *testing.T) {
		t.Parallel()
		services := newServices()
		services.Transactions = &fakeTxService{err: fmt.Errorf("relayer down: %w", entity.ErrNetwork)}

		rec := serve(t, services, http.MethodGet, "/address/"+user.Hex()+"/transactions", "")
		require.Equal(t, http.StatusBadGateway, rec.Code)
		var res struct {
			Error string `json:"error"`
		}
		decode(t, rec, &res)
		require.Contains(t, res.Error, "relayer down")
	})
}

func TestPresenter_AddTransaction(t *testing.T) {
	t.Parallel()

	body := fmt.Sprintf(`{"hash":%q,"srcChainId":1,"destChainId":167000,"amount":"1.5","symbol":"ETH","tokenType":"ETH"}`, txHash.Hex())

	t.Run("stores transaction for the path address", func(t *testing.T) {
		t.Parallel()
		services := newServices()
		rec := serve(t, services, http.MethodPost, "/address/"+user.Hex()+"/transactions", body)
		require.Equal(t, http.StatusCreated, rec.Code)

		added := services.Transactions.(*fakeTxService).added
		require.NotNil(t, added)
		require.Equal(t, user, added.From)
		require.Equal(t, txHash, added.Hash)
		require.Equal(t, l2, added.DestChainID)
		require.Equal(t, "1.5", added.Amount.String())
	})

	t.Run("rejects foreign sender", func(t *testing.T) {
		t.Parallel()
		other := fmt.Sprintf(`{"hash":%q,"from":"0x0000000000000000000000000000000000000def"}`, txHash.Hex())
		rec := serve(t, newServices(), http.MethodPost, "/address/"+user.Hex()+"/transactions", other)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		t.Parallel()
		rec := serve(t, newServices(), http.MethodPost, "/address/"+user.Hex()+"/transactions", "{")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPresenter_GetFee(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name   string
		Target string
		Status int
		Wei    string
		Ether  string
	}{
		{Name: "native token", Target: "/fee/ETH?dest=167000", Status: http.StatusOK, Wei: "9000000000000000", Ether: "0.009"},
		{Name: "case insensitive symbol", Target: "/fee/usdc?src=1&dest=167000", Status: http.StatusOK, Wei: "9000000000000000", Ether: "0.009"},
		{Name: "unknown token", Target: "/fee/DAI?src=1&dest=167000", Status: http.StatusNotFound},
		{Name: "missing destination", Target: "/fee/ETH", Status: http.StatusBadRequest},
		{Name: "invalid source", Target: "/fee/ETH?src=abc&dest=167000", Status: http.StatusBadRequest},
		{Name: "missing source for erc20", Target: "/fee/USDC?dest=167000", Status: http.StatusBadRequest},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()
			rec := serve(t, newServices(), http.MethodGet, test.Target, "")
			require.Equal(t, test.Status, rec.Code)
			if test.Status != http.StatusOK {
				return
			}
			var res presenter.FeeResult
			decode(t, rec, &res)
			require.Equal(t, test.Wei, res.Wei)
			require.Equal(t, test.Ether, res.Ether)
			require.Equal(t, l2, res.DestChainID)
		})
	}
}

func TestPresenter_GetQuota(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name   string
		Target string
		Status int
		Enough bool
	}{
		{Name: "enough", Target: "/quota/USDC?src=1&dest=167000&amount=1000", Status: http.StatusOK, Enough: true},
		{Name: "not enough", Target: "/quota/USDC?src=1&dest=167000&amount=1001", Status: http.StatusOK},
		{Name: "invalid amount", Target: "/quota/USDC?src=1&dest=167000&amount=1.5", Status: http.StatusBadRequest},
		{Name: "negative amount", Target: "/quota/USDC?src=1&dest=167000&amount=-1", Status: http.StatusBadRequest},
		{Name: "missing source", Target: "/quota/USDC?dest=167000&amount=1", Status: http.StatusBadRequest},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()
			rec := serve(t, newServices(), http.MethodGet, test.Target, "")
			require.Equal(t, test.Status, rec.Code)
			if test.Status != http.StatusOK {
				return
			}
			var res presenter.QuotaResult
			decode(t, rec, &res)
			require.Equal(t, test.Enough, res.HasEnoughQuota)
			require.Equal(t, l1, res.SrcChainID)
		})
	}
}

func TestPresenter_GetDelay(t *testing.T) {
	t.Parallel()

	target := fmt.Sprintf("/delay/%d/%d/%s", l1, l2, msgHash.Hex())

	t.Run("unproven message", func(t *testing.T) {
		t.Parallel()
		services := newServices()
		services.Delays = &fakeDelays{receipt: &entity.ProofReceipt{}}

		rec := serve(t, services, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var res presenter.DelayResult
		decode(t, rec, &res)
		require.False(t, res.Proven)
		require.Equal(t, msgHash, res.MsgHash)
		require.Nil(t, res.Preferred)
	})

	t.Run("proven message", func(t *testing.T) {
		t.Parallel()
		services := newServices()
		executor := common.HexToAddress("0x05")
		services.Delays = &fakeDelays{
			receipt: &entity.ProofReceipt{ReceivedAt: 1_000, PreferredExecutor: executor},
			delays:  &entity.RemainingDelays{Preferred: -100 * time.Second, NotPreferred: 0},
		}

		rec := serve(t, services, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var res presenter.DelayResult
		decode(t, rec, &res)
		require.True(t, res.Proven)
		require.Equal(t, uint64(1_000), res.ReceivedAt)
		require.Equal(t, executor, *res.PreferredExecutor)
		require.Equal(t, int64(-100), *res.Preferred)
		require.Equal(t, int64(0), *res.NotPreferred)
	})

	t.Run("unknown route", func(t *testing.T) {
		t.Parallel()
		services := newServices()
		services.Delays = &fakeDelays{err: fmt.Errorf("no bridge: %w", entity.ErrConfiguration)}

		rec := serve(t, services, http.MethodGet, target, "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed message hash", func(t *testing.T) {
		t.Parallel()
		rec := serve(t, newServices(), http.MethodGet, fmt.Sprintf("/delay/%d/%d/0x1234", l1, l2), "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPresenter_GetTxStatus(t *testing.T) {
	t.Parallel()

	services := newServices()
	services.Watchers.(*fakeWatchers).states[txHash] = poller.State{
		TxHash:      txHash,
		MsgHash:     msgHash,
		MsgStatus:   entity.MessageStatusRetriable,
		Processable: true,
		Watching:    true,
	}

	rec := serve(t, services, http.MethodGet, "/tx/"+txHash.Hex()+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res poller.State
	decode(t, rec, &res)
	require.Equal(t, msgHash, res.MsgHash)
	require.Equal(t, entity.MessageStatusRetriable, res.MsgStatus)
	require.True(t, res.Processable)

	rec = serve(t, services, http.MethodGet, "/tx/"+msgHash.Hex()+"/status", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPresenter_GetRelayerFees(t *testing.T) {
	t.Parallel()

	services := newServices()
	services.RelayerFees = &fakeRelayerFees{fees: []*relayer.Fee{
		{Type: relayer.FeeTypeETH, Amount: decimal.NewFromInt(100), DestChainID: l2},
		{Type: relayer.FeeTypeERC20, Amount: decimal.NewFromInt(200), DestChainID: l2},
		{Type: relayer.FeeTypeETH, Amount: decimal.NewFromInt(300), DestChainID: l1},
	}}

	rec := serve(t, services, http.MethodGet, "/relayer/fees?type=eth&dest=167000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res []*relayer.Fee
	decode(t, rec, &res)
	require.Len(t, res, 1)
	require.Equal(t, "100", res[0].Amount.String())

	rec = serve(t, services, http.MethodGet, "/relayer/fees?type=erc777", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type panickingQuotas struct{}

func (panickingQuotas) HasEnoughQuota(_ context.Context, _ *entity.Token, _, _ uint64, _ *big.Int) bool {
	panic("boom")
}

func TestPresenter_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	services := newServices()
	services.Quotas = panickingQuotas{}

	rec := serve(t, services, http.MethodGet, "/quota/ETH?src=1&dest=167000&amount=1", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
