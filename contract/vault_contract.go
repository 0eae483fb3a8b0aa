package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/bridge-tx-tracker/contract/bridgeabi"
	"github.com/omni/bridge-tx-tracker/ethclient"
)

type VaultContract struct {
	*Contract
}

func NewVaultContract(client ethclient.Client, addr common.Address) *VaultContract {
	return &VaultContract{NewContract(client, addr, bridgeabi.VaultABI)}
}

// CanonicalToBridged returns the bridged counterpart of a canonical token, or the zero address if it was never deployed.
func (c *VaultContract) CanonicalToBridged(ctx context.Context, canonicalChainID uint64, canonical common.Address) (common.Address, error) {
	res, err := c.CallAndUnpack(ctx, "canonicalToBridged", new(big.Int).SetUint64(canonicalChainID), canonical)
	if err != nil {
		return common.Address{}, fmt.Errorf("cannot obtain bridged token address: %w", err)
	}
	addr, ok := res[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected bridged token type %T", res[0])
	}
	return addr, nil
}

// BridgedToCanonical returns the origin chain and address of a bridged token.
// The zero address means the token is not a bridged one.
func (c *VaultContract) BridgedToCanonical(ctx context.Context, bridged common.Address) (uint64, common.Address, error) {
	res, err := c.CallAndUnpack(ctx, "bridgedToCanonical", bridged)
	if err != nil {
		return 0, common.Address{}, fmt.Errorf("cannot obtain canonical token: %w", err)
	}
	chainID, ok1 := res[0].(uint64)
	addr, ok2 := res[1].(common.Address)
	if !ok1 || !ok2 {
		return 0, common.Address{}, fmt.Errorf("unexpected canonical token types %T, %T", res[0], res[1])
	}
	return chainID, addr, nil
}
