package ethclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/omni/bridge-tx-tracker/config"
	"github.com/omni/bridge-tx-tracker/entity"
)

var (
	ErrIncompatibleChainID = errors.New("rpc url returned incompatible chainID")
	ErrUnknownChain        = fmt.Errorf("%w: no rpc client for chain", entity.ErrConfiguration)
)

type Client interface {
	ChainID() uint64
	HeaderByNumber(ctx context.Context, n uint) (*types.Header, error)
	LatestHeader(ctx context.Context) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	TransactionReceiptByHash(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

type rpcClient struct {
	chainID uint64
	url     string
	timeout time.Duration
	client  *ethclient.Client
}

func NewClient(url string, timeout time.Duration, chainID uint64) (Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rawClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("can't dial JSON rpc url: %w", err)
	}
	client := &rpcClient{
		chainID: chainID,
		url:     url,
		timeout: timeout,
		client:  ethclient.NewClient(rawClient),
	}
	rpcChainID, err := client.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get chainID: %w", err)
	}
	if !rpcChainID.IsUint64() || rpcChainID.Uint64() != chainID {
		return nil, fmt.Errorf("received chainID %s != expected %d: %w", rpcChainID, chainID, ErrIncompatibleChainID)
	}
	return client, nil
}

func (c *rpcClient) ChainID() uint64 {
	return c.chainID
}

// observe records the request outcome and marks failures as network errors.
func (c *rpcClient) observe(query string, err error) error {
	ObserveError(c.chainID, c.url, query, err)
	if err != nil {
		return fmt.Errorf("%s on chain %d failed: %w: %w", query, c.chainID, entity.ErrNetwork, err)
	}
	return nil
}

func (c *rpcClient) HeaderByNumber(ctx context.Context, n uint) (*types.Header, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_getBlockByNumber")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(uint64(n)))
	return header, c.observe("eth_getBlockByNumber", err)
}

func (c *rpcClient) LatestHeader(ctx context.Context) (*types.Header, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_getBlockByNumber")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, nil)
	return header, c.observe("eth_getBlockByNumber", err)
}

func (c *rpcClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_gasPrice")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	price, err := c.client.SuggestGasPrice(ctx)
	return price, c.observe("eth_gasPrice", err)
}

func (c *rpcClient) TransactionReceiptByHash(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_getTransactionReceipt")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	return receipt, c.observe("eth_getTransactionReceipt", err)
}

func (c *rpcClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_call")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.client.CallContract(ctx, msg, nil)
	return res, c.observe("eth_call", err)
}

// Clients holds one RPC client per chain id.
type Clients map[uint64]Client

func (c Clients) Get(chainID uint64) (Client, error) {
	client, ok := c[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrUnknownChain)
	}
	return client, nil
}

// DialAll dials one client per configured chain.
func DialAll(chains map[string]*config.ChainConfig) (Clients, error) {
	clients := make(Clients, len(chains))
	for name, chain := range chains {
		client, err := NewClient(chain.RPC.Host, chain.RPC.Timeout, chain.ChainID)
		if err != nil {
			return nil, fmt.Errorf("can't dial %s rpc client: %w", name, err)
		}
		clients[chain.ChainID] = client
	}
	return clients, nil
}
