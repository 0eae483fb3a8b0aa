package fee

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-tx-tracker/config"
	"github.com/omni/bridge-tx-tracker/contract"
	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/ethclient"
	"github.com/omni/bridge-tx-tracker/logging"
)

// Estimator recommends the processing fee a relayer needs to claim a message on the destination chain.
type Estimator struct {
	logger    logging.Logger
	clients   ethclient.Clients
	routing   config.Routing
	gasLimits *config.GasLimitsConfig
}

func NewEstimator(logger logging.Logger, clients ethclient.Clients, routing config.Routing, gasLimits *config.GasLimitsConfig) *Estimator {
	return &Estimator{
		logger:    logger,
		clients:   clients,
		routing:   routing,
		gasLimits: gasLimits,
	}
}

// RecommendFee returns destination gas price multiplied by the gas limit of the token tier.
// srcChainID equal to 0 means the source chain is unknown, which is only allowed for native tokens.
func (e *Estimator) RecommendFee(ctx context.Context, token *entity.Token, destChainID, srcChainID uint64) (*big.Int, error) {
	client, err := e.clients.Get(destChainID)
	if err != nil {
		return nil, err
	}

	gasLimit, err := e.GasLimit(ctx, token, destChainID, srcChainID)
	if err != nil {
		return nil, err
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get gas price: %w", err)
	}

	fee := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	e.logger.WithFields(logrus.Fields{
		"symbol":        token.Symbol,
		"src_chain_id":  srcChainID,
		"dest_chain_id": destChainID,
		"gas_price":     gasPrice.String(),
		"gas_limit":     gasLimit,
		"fee":           fee.String(),
	}).Debug("recommended processing fee")
	return fee, nil
}

// GasLimit selects the gas limit tier for the token.
func (e *Estimator) GasLimit(ctx context.Context, token *entity.Token, destChainID, srcChainID uint64) (uint64, error) {
	if token.IsNative() {
		return e.gasLimits.ETH, nil
	}
	if srcChainID == 0 {
		return 0, fmt.Errorf("token %s: %w", token.Symbol, entity.ErrMissingSourceChain)
	}

	deployed, err := e.IsDeployedOnDestination(ctx, token, destChainID, srcChainID)
	if err != nil {
		return 0, err
	}

	switch token.Type {
	case entity.TokenTypeERC20:
		if deployed {
			return e.gasLimits.ERC20Deployed, nil
		}
		return e.gasLimits.ERC20NotDeployed, nil
	case entity.TokenTypeERC721:
		if deployed {
			return e.gasLimits.ERC721Deployed, nil
		}
		return e.gasLimits.ERC721NotDeployed, nil
	case entity.TokenTypeERC1155:
		if deployed {
			return e.gasLimits.ERC1155Deployed, nil
		}
		return e.gasLimits.ERC1155NotDeployed, nil
	default:
		return 0, fmt.Errorf("token %s has unsupported type %q: %w", token.Symbol, token.Type, entity.ErrPrecondition)
	}
}

// IsDeployedOnDestination reports whether the bridged representation of the token already exists on the destination chain.
func (e *Estimator) IsDeployedOnDestination(ctx context.Context, token *entity.Token, destChainID, srcChainID uint64) (bool, error) {
	if _, ok := token.Address(destChainID); ok {
		return true, nil
	}

	canonical, ok := token.Address(srcChainID)
	if !ok {
		return false, fmt.Errorf("token %s has no address on chain %d: %w", token.Symbol, srcChainID, entity.ErrPrecondition)
	}

	route, err := e.routing.Get(destChainID, srcChainID)
	if err != nil {
		return false, err
	}
	vaultAddr := vaultAddress(route, token.Type)
	if vaultAddr == (common.Address{}) {
		return false, fmt.Errorf("no %s vault on chain %d: %w", token.Type, destChainID, entity.ErrConfiguration)
	}

	client, err := e.clients.Get(destChainID)
	if err != nil {
		return false, err
	}
	bridged, err := contract.NewVaultContract(client, vaultAddr).CanonicalToBridged(ctx, srcChainID, canonical)
	if err != nil {
		return false, err
	}
	return bridged != (common.Address{}), nil
}

func vaultAddress(route *config.RouteConfig, tokenType entity.TokenType) common.Address {
	switch tokenType {
	case entity.TokenTypeERC20:
		return route.ERC20VaultAddress
	case entity.TokenTypeERC721:
		return route.ERC721VaultAddress
	case entity.TokenTypeERC1155:
		return route.ERC1155VaultAddress
	default:
		return common.Address{}
	}
}
