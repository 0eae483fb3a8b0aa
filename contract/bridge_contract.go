package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/bridge-tx-tracker/contract/bridgeabi"
	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/ethclient"
)

var ErrMessageSentNotFound = errors.New("MessageSent event not found in receipt")

// BridgeMessage mirrors the IBridge.Message tuple, field names must match the abi components.
//
//nolint:revive,stylecheck
type BridgeMessage struct {
	Id          uint64
	Fee         uint64
	GasLimit    uint32
	From        common.Address
	SrcChainId  uint64
	SrcOwner    common.Address
	DestChainId uint64
	DestOwner   common.Address
	To          common.Address
	Value       *big.Int
	Data        []byte
}

type MessageSent struct {
	MsgHash common.Hash
	Message *BridgeMessage
	Log     *types.Log
}

type BridgeContract struct {
	*Contract
}

func NewBridgeContract(client ethclient.Client, addr common.Address) *BridgeContract {
	return &BridgeContract{NewContract(client, addr, bridgeabi.BridgeABI)}
}

func (c *BridgeContract) MessageStatus(ctx context.Context, msgHash common.Hash) (entity.MessageStatus, error) {
	res, err := c.CallAndUnpack(ctx, "messageStatus", msgHash)
	if err != nil {
		return 0, fmt.Errorf("cannot obtain message status: %w", err)
	}
	status, ok := res[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected message status type %T", res[0])
	}
	return entity.MessageStatus(status), nil
}

func (c *BridgeContract) ProofReceipt(ctx context.Context, msgHash common.Hash) (*entity.ProofReceipt, error) {
	res, err := c.CallAndUnpack(ctx, "proofReceipt", msgHash)
	if err != nil {
		return nil, fmt.Errorf("cannot obtain proof receipt: %w", err)
	}
	receivedAt, ok1 := res[0].(uint64)
	executor, ok2 := res[1].(common.Address)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("unexpected proof receipt types %T, %T", res[0], res[1])
	}
	return &entity.ProofReceipt{
		ReceivedAt:        receivedAt,
		PreferredExecutor: executor,
	}, nil
}

func (c *BridgeContract) InvocationDelays(ctx context.Context) (*entity.InvocationDelays, error) {
	res, err := c.CallAndUnpack(ctx, "getInvocationDelays")
	if err != nil {
		return nil, fmt.Errorf("cannot obtain invocation delays: %w", err)
	}
	preferred, err := toSeconds(res[0])
	if err != nil {
		return nil, err
	}
	notPreferred, err := toSeconds(res[1])
	if err != nil {
		return nil, err
	}
	return &entity.InvocationDelays{
		Preferred:    preferred,
		NotPreferred: notPreferred,
	}, nil
}

func toSeconds(v interface{}) (time.Duration, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected delay type %T", v)
	}
	if !n.IsInt64() || n.Int64() > int64(time.Duration(1<<63-1)/time.Second) {
		return 0, fmt.Errorf("delay %s is out of range", n)
	}
	return time.Duration(n.Int64()) * time.Second, nil
}

// FindMessageSent looks for the MessageSent event emitted by this bridge for the given source owner.
func (c *BridgeContract) FindMessageSent(receipt *types.Receipt, srcOwner common.Address) (*MessageSent, error) {
	for _, log := range receipt.Logs {
		if log.Address != c.address || len(log.Topics) == 0 || log.Topics[0] != bridgeabi.MessageSentEventSignature {
			continue
		}
		sent, err := c.ParseMessageSent(log)
		if err != nil {
			return nil, err
		}
		if sent.Message.SrcOwner == srcOwner {
			return sent, nil
		}
	}
	return nil, ErrMessageSentNotFound
}

func (c *BridgeContract) ParseMessageSent(log *types.Log) (sent *MessageSent, err error) {
	_, data, err := c.ParseLog(log)
	if err != nil {
		return nil, err
	}
	msgHash, ok := data["msgHash"].([32]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected msgHash type %T", data["msgHash"])
	}
	defer func() {
		if r := recover(); r != nil {
			sent, err = nil, fmt.Errorf("can't convert bridge message: %v", r)
		}
	}()
	msg, ok := abi.ConvertType(data["message"], new(BridgeMessage)).(*BridgeMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected message type %T", data["message"])
	}
	return &MessageSent{
		MsgHash: msgHash,
		Message: msg,
		Log:     log,
	}, nil
}
