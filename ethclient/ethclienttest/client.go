// Package ethclienttest provides a scriptable in-memory ethclient.Client.
package ethclienttest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/bridge-tx-tracker/entity"
)

var ErrNoHandler = errors.New("no eth_call handler registered")

// MethodFunc receives the decoded call arguments and returns the values to be packed as outputs.
type MethodFunc func(args []interface{}) ([]interface{}, error)

type handler struct {
	method abi.Method
	fn     MethodFunc
}

type Client struct {
	ID uint64

	mu       sync.Mutex
	gasPrice *big.Int
	head     *types.Header
	headers  map[uint64]*types.Header
	receipts map[common.Hash]*types.Receipt
	handlers map[common.Address]map[[4]byte]*handler
	calls    map[string]int
	err      error
}

func NewClient(chainID uint64) *Client {
	return &Client{
		ID:       chainID,
		receipts: make(map[common.Hash]*types.Receipt),
		headers:  make(map[uint64]*types.Header),
		handlers: make(map[common.Address]map[[4]byte]*handler),
		calls:    make(map[string]int),
	}
}

func (c *Client) SetGasPrice(price *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gasPrice = price
}

func (c *Client) SetHead(number, timestamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = &types.Header{Number: new(big.Int).SetUint64(number), Time: timestamp}
}

// AddHeader makes the block with the given number and timestamp available to HeaderByNumber.
func (c *Client) AddHeader(number, timestamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[number] = &types.Header{Number: new(big.Int).SetUint64(number), Time: timestamp}
}

func (c *Client) AddReceipt(receipt *types.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[receipt.TxHash] = receipt
}

// FailWith makes every subsequent request fail with err wrapped as a network error.
func (c *Client) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Handle registers fn as the implementation of method on the contract at addr.
func (c *Client) Handle(addr common.Address, contractABI abi.ABI, method string, fn MethodFunc) {
	m, ok := contractABI.Methods[method]
	if !ok {
		panic(fmt.Sprintf("method %s is not in the abi", method))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[addr] == nil {
		c.handlers[addr] = make(map[[4]byte]*handler)
	}
	var id [4]byte
	copy(id[:], m.ID)
	c.handlers[addr][id] = &handler{method: m, fn: fn}
}

// Calls returns how many times the given request (rpc method or contract method name) was served.
func (c *Client) Calls(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *Client) begin(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
	if c.err != nil {
		return fmt.Errorf("%s: %w: %w", name, entity.ErrNetwork, c.err)
	}
	return nil
}

func (c *Client) ChainID() uint64 {
	return c.ID
}

func (c *Client) HeaderByNumber(_ context.Context, n uint) (*types.Header, error) {
	if err := c.begin("eth_getBlockByNumber"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	header, ok := c.headers[uint64(n)]
	if !ok {
		return nil, ethereum.NotFound
	}
	return types.CopyHeader(header), nil
}

func (c *Client) LatestHeader(_ context.Context) (*types.Header, error) {
	if err := c.begin("eth_getBlockByNumber"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.head == nil {
		return nil, ethereum.NotFound
	}
	return types.CopyHeader(c.head), nil
}

func (c *Client) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	if err := c.begin("eth_gasPrice"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gasPrice == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(c.gasPrice), nil
}

func (c *Client) TransactionReceiptByHash(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := c.begin("eth_getTransactionReceipt"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *Client) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("invalid call message")
	}
	var id [4]byte
	copy(id[:], msg.Data[:4])

	c.mu.Lock()
	h, ok := c.handlers[*msg.To][id]
	c.mu.Unlock()
	if !ok {
		if err := c.begin("eth_call"); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s %x", ErrNoHandler, msg.To, id)
	}
	if err := c.begin(h.method.Name); err != nil {
		return nil, err
	}

	args, err := h.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("can't unpack %s arguments: %w", h.method.Name, err)
	}
	outputs, err := h.fn(args)
	if err != nil {
		return nil, err
	}
	return h.method.Outputs.Pack(outputs...)
}
