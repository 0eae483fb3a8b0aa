package txsync_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-tx-tracker/config"
	"github.com/omni/bridge-tx-tracker/contract"
	"github.com/omni/bridge-tx-tracker/contract/bridgeabi"
	"github.com/omni/bridge-tx-tracker/db"
	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/ethclient"
	"github.com/omni/bridge-tx-tracker/ethclient/ethclienttest"
	"github.com/omni/bridge-tx-tracker/relayer"
	"github.com/omni/bridge-tx-tracker/txsync"
)

const (
	l1 uint64 = 1
	l2 uint64 = 167000
)

var (
	owner        = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	l1BridgeAddr = common.HexToAddress("0xd60247c6848B7Ca29eDdF63AA924E53dB6Ddd8EC")
	l2BridgeAddr = common.HexToAddress("0x1670000000000000000000000000000000000001")
	routing      = config.Routing{
		l1: {l2: &config.RouteConfig{BridgeAddress: l1BridgeAddr}},
		l2: {l1: &config.RouteConfig{BridgeAddress: l2BridgeAddr}},
	}
)

type memoryRepo struct {
	mu      sync.Mutex
	order   []common.Hash
	txs     map[common.Hash]*entity.BridgeTransaction
	deleted []common.Hash
}

func newMemoryRepo(txs ...*entity.BridgeTransaction) *memoryRepo {
	r := &memoryRepo{txs: make(map[common.Hash]*entity.BridgeTransaction)}
	for _, tx := range txs {
		_ = r.Ensure(context.Background(), tx)
	}
	return r
}

func (r *memoryRepo) Ensure(_ context.Context, tx *entity.BridgeTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.txs[tx.Hash]; !ok {
		r.order = append(r.order, tx.Hash)
	}
	r.txs[tx.Hash] = tx
	return nil
}

func (r *memoryRepo) GetByHash(_ context.Context, hash common.Hash) (*entity.BridgeTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[hash]
	if !ok {
		return nil, db.ErrNotFound
	}
	return tx, nil
}

func (r *memoryRepo) find(match func(tx *entity.BridgeTransaction) bool) []*entity.BridgeTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*entity.BridgeTransaction
	for _, hash := range r.order {
		if tx, ok := r.txs[hash]; ok && match(tx) {
			res = append(res, tx)
		}
	}
	return res
}

func (r *memoryRepo) FindByAddress(_ context.Context, addr common.Address) ([]*entity.BridgeTransaction, error) {
	return r.find(func(tx *entity.BridgeTransaction) bool { return tx.From == addr }), nil
}

func (r *memoryRepo) FindByStatus(_ context.Context, statuses ...entity.MessageStatus) ([]*entity.BridgeTransaction, error) {
	return r.find(func(tx *entity.BridgeTransaction) bool {
		for _, status := range statuses {
			if tx.MsgStatus == status {
				return true
			}
		}
		return false
	}), nil
}

func (r *memoryRepo) DeleteByHashes(_ context.Context, addr common.Address, hashes ...common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, hash := range hashes {
		if tx, ok := r.txs[hash]; ok && tx.From == addr {
			delete(r.txs, hash)
			r.deleted = append(r.deleted, hash)
		}
	}
	return nil
}

type fakeRelayer struct {
	mu    sync.Mutex
	pages [][]*entity.BridgeTransaction
	err   error
	calls int
	sizes []uint
}

func (f *fakeRelayer) PageSize() uint {
	return 25
}

func (f *fakeRelayer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRelayer) GetAllBridgeTransactionsByAddress(_ context.Context, _ common.Address, pagination relayer.PaginationParams, _ uint64) ([]*entity.BridgeTransaction, *relayer.PaginationInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sizes = append(f.sizes, pagination.Size)
	if f.err != nil {
		return nil, nil, f.err
	}
	info := &relayer.PaginationInfo{
		Page:       uint64(pagination.Page),
		TotalPages: uint64(len(f.pages)),
		Last:       int(pagination.Page) >= len(f.pages)-1,
	}
	if int(pagination.Page) >= len(f.pages) {
		return nil, info, nil
	}
	return f.pages[pagination.Page], info, nil
}

type env struct {
	service  *txsync.Service
	repo     *memoryRepo
	relayer  *fakeRelayer
	l1Client *ethclienttest.Client
	l2Client *ethclienttest.Client
}

func newEnv(t *testing.T, statuses map[common.Hash]entity.MessageStatus, local ...*entity.BridgeTransaction) *env {
	t.Helper()

	l1Client := ethclienttest.NewClient(l1)
	l2Client := ethclienttest.NewClient(l2)
	l2Client.Handle(l2BridgeAddr, bridgeabi.BridgeABI.ABI, "messageStatus", func(args []interface{}) ([]interface{}, error) {
		hash := common.Hash(args[0].([32]byte))
		return []interface{}{uint8(statuses[hash])}, nil
	})
	e := &env{
		repo:     newMemoryRepo(local...),
		relayer:  &fakeRelayer{},
		l1Client: l1Client,
		l2Client: l2Client,
	}
	logger, _ := logtest.NewNullLogger()
	e.service = txsync.NewService(logger, e.repo, e.relayer, ethclient.Clients{l1: l1Client, l2: l2Client}, routing, &config.SyncConfig{
		Interval:  10 * time.Millisecond,
		Timeout:   time.Second,
		Addresses: []common.Address{owner},
	})
	return e
}

func bridgeTx(hash, msgHash string, block uint64) *entity.BridgeTransaction {
	tx := &entity.BridgeTransaction{
		Hash:        common.HexToHash(hash),
		SrcChainID:  l1,
		DestChainID: l2,
		From:        owner,
		Symbol:      "ETH",
		TokenType:   entity.TokenTypeETH,
		BlockNumber: block,
	}
	if msgHash != "" {
		tx.MsgHash = common.HexToHash(msgHash)
	}
	return tx
}

func TestService_Reconcile(t *testing.T) {
	t.Parallel()

	a := bridgeTx("0xa", "0xfa", 10)
	localB := bridgeTx("0xb", "0xfb", 11)
	relayerB := bridgeTx("0xb", "0xfb", 11)
	relayerB.MsgStatus = entity.MessageStatusRetriable
	c := bridgeTx("0xc", "0xfc", 12)

	e := newEnv(t, map[common.Hash]entity.MessageStatus{
		common.HexToHash("0xfb"): entity.MessageStatusDone,
		common.HexToHash("0xfc"): entity.MessageStatusNew,
	}, a, localB)
	e.relayer.pages = [][]*entity.BridgeTransaction{{relayerB}, {c}}

	res, err := e.service.Reconcile(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, 2, e.relayer.Calls())
	require.Equal(t, []uint{25, 25}, e.relayer.sizes)
	require.Len(t, res, 3)

	// NEW first, newest block first
	require.Equal(t, c.Hash, res[0].Hash)
	require.Equal(t, a.Hash, res[1].Hash)
	require.Equal(t, relayerB.Hash, res[2].Hash)
	require.Equal(t, entity.MessageStatusDone, res[2].MsgStatus)
	require.Equal(t, entity.MessageStatusRetriable, relayerB.MsgStatus, "relayer input must not be modified")

	require.Equal(t, []common.Hash{localB.Hash}, e.repo.deleted)
	stored, err := e.repo.FindByAddress(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, []*entity.BridgeTransaction{a}, stored)

	res2, err := e.service.Reconcile(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, res, res2)
}

func TestService_ReconcileErrors(t *testing.T) {
	t.Parallel()

	t.Run("relayer unreachable", func(t *testing.T) {
		t.Parallel()
		local := bridgeTx("0xa", "0xfa", 10)
		e := newEnv(t, nil, local)
		e.relayer.err = entity.ErrNetwork
		_, err := e.service.Reconcile(context.Background(), owner)
		require.ErrorIs(t, err, entity.ErrNetwork)
		require.Empty(t, e.repo.deleted)
	})

	t.Run("status read failure", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, nil)
		e.relayer.pages = [][]*entity.BridgeTransaction{{bridgeTx("0xc", "0xfc", 12)}}
		e.l2Client.FailWith(errors.New("connection refused"))
		_, err := e.service.Reconcile(context.Background(), owner)
		require.ErrorIs(t, err, entity.ErrNetwork)
	})
}

func messageSentReceipt(t *testing.T, txHash common.Hash, msgHash common.Hash, srcOwner common.Address) *types.Receipt {
	t.Helper()

	data, err := bridgeabi.BridgeABI.Events["MessageSent"].Inputs.NonIndexed().Pack(&contract.BridgeMessage{
		Id:          1,
		GasLimit:    140000,
		From:        srcOwner,
		SrcChainId:  l1,
		SrcOwner:    srcOwner,
		DestChainId: l2,
		DestOwner:   srcOwner,
		To:          srcOwner,
		Value:       big.NewInt(1),
		Data:        []byte{},
	})
	require.NoError(t, err)
	return &types.Receipt{
		TxHash:      txHash,
		BlockNumber: big.NewInt(42),
		Logs: []*types.Log{{
			Address: l1BridgeAddr,
			Topics:  []common.Hash{bridgeabi.MessageSentEventSignature, msgHash},
			Data:    data,
		}},
	}
}

func TestService_AddLocalTransaction(t *testing.T) {
	t.Parallel()

	t.Run("mined transaction is enhanced", func(t *testing.T) {
		t.Parallel()
		msgHash := common.HexToHash("0xfa")
		e := newEnv(t, map[common.Hash]entity.MessageStatus{msgHash: entity.MessageStatusRetriable})
		tx := bridgeTx("0xa", "", 0)
		e.l1Client.AddReceipt(messageSentReceipt(t, tx.Hash, msgHash, owner))
		e.l1Client.AddHeader(42, 1_700_000_000)

		res, err := e.service.AddLocalTransaction(context.Background(), tx)
		require.NoError(t, err)
		require.Equal(t, msgHash, res.MsgHash)
		require.Equal(t, uint64(42), res.BlockNumber)
		require.NotNil(t, res.Timestamp)
		require.Equal(t, time.Unix(1_700_000_000, 0).UTC(), *res.Timestamp)
		require.Equal(t, entity.MessageStatusRetriable, res.MsgStatus)
		require.False(t, tx.HasMsgHash(), "input must not be modified")

		stored, err := e.repo.GetByHash(context.Background(), tx.Hash)
		require.NoError(t, err)
		require.Equal(t, res, stored)
	})

	t.Run("pending transaction is stored as is", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, nil)
		tx := bridgeTx("0xa", "", 0)
		res, err := e.service.AddLocalTransaction(context.Background(), tx)
		require.NoError(t, err)
		require.Equal(t, tx, res)
		require.Zero(t, e.l2Client.Calls("messageStatus"))
	})

	t.Run("receipt of another sender is stored without message hash", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, nil)
		tx := bridgeTx("0xa", "", 0)
		e.l1Client.AddReceipt(messageSentReceipt(t, tx.Hash, common.HexToHash("0xfa"), common.HexToAddress("0xdef")))
		res, err := e.service.AddLocalTransaction(context.Background(), tx)
		require.NoError(t, err)
		require.False(t, res.HasMsgHash())
	})

	for _, test := range []struct {
		Name string
		Tx   *entity.BridgeTransaction
		Err  error
	}{
		{"missing hash", &entity.BridgeTransaction{From: owner, SrcChainID: l1, DestChainID: l2}, entity.ErrPrecondition},
		{"missing sender", &entity.BridgeTransaction{Hash: common.HexToHash("0x1"), SrcChainID: l1, DestChainID: l2}, entity.ErrPrecondition},
		{"unsupported chains", &entity.BridgeTransaction{Hash: common.HexToHash("0x1"), From: owner, SrcChainID: 5, DestChainID: l2}, entity.ErrConfiguration},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t, nil)
			_, err := e.service.AddLocalTransaction(context.Background(), test.Tx)
			require.ErrorIs(t, err, test.Err)
		})
	}
}

func TestService_RefreshStatuses(t *testing.T) {
	t.Parallel()

	pending := bridgeTx("0xa", "0xfa", 10)
	unchanged := bridgeTx("0xb", "0xfb", 11)
	done := bridgeTx("0xc", "0xfc", 12)
	done.MsgStatus = entity.MessageStatusDone

	e := newEnv(t, map[common.Hash]entity.MessageStatus{
		common.HexToHash("0xfa"): entity.MessageStatusDone,
		common.HexToHash("0xfb"): entity.MessageStatusNew,
	}, pending, unchanged, done)

	updated, err := e.service.RefreshStatuses(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, updated)
	require.Equal(t, 2, e.l2Client.Calls("messageStatus"))

	stored, err := e.repo.GetByHash(context.Background(), pending.Hash)
	require.NoError(t, err)
	require.Equal(t, entity.MessageStatusDone, stored.MsgStatus)
}

func TestService_RefreshStatusesSkipsBrokenTransactions(t *testing.T) {
	t.Parallel()

	broken := bridgeTx("0xa", "", 0)
	good := bridgeTx("0xb", "0xfb", 11)
	e := newEnv(t, map[common.Hash]entity.MessageStatus{
		common.HexToHash("0xfb"): entity.MessageStatusDone,
	}, broken, good)
	e.l1Client.AddReceipt(messageSentReceipt(t, broken.Hash, common.HexToHash("0xfa"), common.HexToAddress("0xdef")))

	updated, err := e.service.RefreshStatuses(context.Background())
	require.ErrorIs(t, err, contract.ErrMessageSentNotFound)
	require.Contains(t, err.Error(), broken.Hash.Hex())
	require.Equal(t, 1, updated)

	stored, err := e.repo.GetByHash(context.Background(), good.Hash)
	require.NoError(t, err)
	require.Equal(t, entity.MessageStatusDone, stored.MsgStatus)
	stored, err = e.repo.GetByHash(context.Background(), broken.Hash)
	require.NoError(t, err)
	require.Equal(t, entity.MessageStatusNew, stored.MsgStatus)
	require.False(t, stored.HasMsgHash())
}

func TestService_RefreshStatusesFillsTimestamp(t *testing.T) {
	t.Parallel()

	tx := bridgeTx("0xa", "0xfa", 10)
	e := newEnv(t, nil, tx)
	e.l1Client.AddHeader(10, 1_700_000_000)

	updated, err := e.service.RefreshStatuses(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	stored, err := e.repo.GetByHash(context.Background(), tx.Hash)
	require.NoError(t, err)
	require.NotNil(t, stored.Timestamp)
	require.Equal(t, time.Unix(1_700_000_000, 0).UTC(), *stored.Timestamp)
	require.Nil(t, tx.Timestamp, "stored input must not be modified")
}

func TestService_Start(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.service.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return e.relayer.Calls() >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("service did not stop")
	}
}

func TestSortTransactions(t *testing.T) {
	t.Parallel()

	oldNew := bridgeTx("0x1", "0xf1", 1)
	newNew := bridgeTx("0x2", "0xf2", 5)
	doneTx := bridgeTx("0x3", "0xf3", 9)
	doneTx.MsgStatus = entity.MessageStatusDone
	retriable := bridgeTx("0x4", "0xf4", 3)
	retriable.MsgStatus = entity.MessageStatusRetriable

	input := []*entity.BridgeTransaction{oldNew, doneTx, retriable, newNew}
	res := txsync.SortTransactions(input)
	require.Equal(t, []*entity.BridgeTransaction{newNew, oldNew, doneTx, retriable}, res)
	require.Equal(t, oldNew, input[0])
}
