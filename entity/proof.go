package entity

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ProofReceipt is the destination bridge record of when a message was proven.
type ProofReceipt struct {
	ReceivedAt        uint64         `json:"receivedAt"`
	PreferredExecutor common.Address `json:"preferredExecutor"`
}

func (r *ProofReceipt) IsZero() bool {
	return r == nil || (r.ReceivedAt == 0 && r.PreferredExecutor == common.Address{})
}

// InvocationDelays is the configured wait time after proof, per claimer tier.
type InvocationDelays struct {
	Preferred    time.Duration
	NotPreferred time.Duration
}

// RemainingDelays is the time left until each claimer tier may claim.
// Negative values mean the tier is already eligible.
type RemainingDelays struct {
	Preferred    time.Duration `json:"preferred"`
	NotPreferred time.Duration `json:"notPreferred"`
}
