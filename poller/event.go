package poller

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/bridge-tx-tracker/entity"
)

type EventType string

const (
	EventStatus      EventType = "status"
	EventDelay       EventType = "delay"
	EventProcessable EventType = "processable"
	EventError       EventType = "error"
	EventStop        EventType = "stop"
)

type Event struct {
	Type        EventType
	TxHash      common.Hash
	Status      entity.MessageStatus
	Delays      *entity.RemainingDelays
	Processable bool
	Err         error
}

// State is the latest picture a watcher has of its transaction.
type State struct {
	TxHash       common.Hash             `json:"txHash"`
	MsgHash      common.Hash             `json:"msgHash"`
	MsgStatus    entity.MessageStatus    `json:"msgStatus"`
	Processable  bool                    `json:"processable"`
	ProofReceipt *entity.ProofReceipt    `json:"proofReceipt,omitempty"`
	Delays       *entity.RemainingDelays `json:"remainingDelays,omitempty"`
	Watching     bool                    `json:"watching"`
	Error        string                  `json:"error,omitempty"`
	UpdatedAt    time.Time               `json:"updatedAt"`
}
