package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/bridge-tx-tracker/contract/bridgeabi"
	"github.com/omni/bridge-tx-tracker/ethclient"
)

type QuotaManagerContract struct {
	*Contract
}

func NewQuotaManagerContract(client ethclient.Client, addr common.Address) *QuotaManagerContract {
	return &QuotaManagerContract{NewContract(client, addr, bridgeabi.QuotaManagerABI)}
}

func (c *QuotaManagerContract) AvailableQuota(ctx context.Context, token common.Address, leap uint64) (*big.Int, error) {
	res, err := c.CallAndUnpack(ctx, "availableQuota", token, new(big.Int).SetUint64(leap))
	if err != nil {
		return nil, fmt.Errorf("cannot obtain available quota: %w", err)
	}
	quota, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected quota type %T", res[0])
	}
	return quota, nil
}
