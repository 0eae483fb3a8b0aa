package quota

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

// Checker tells whether the destination quota manager lets an amount through.
// NFT transfers are never limited. Any failure to read the quota allows the transfer.
type Checker struct {
	logger  logging.Logger
	clients ethclient.Clients
	routing config.Routing
}

func NewChecker(logger logging.Logger, clients ethclient.Clients, routing config.Routing) *Checker {
	return &Checker{
		logger:  logger,
		clients: clients,
		routing: routing,
	}
}

func (c *Checker) HasEnoughQuota(ctx context.Context, token *entity.Token, srcChainID, destChainID uint64, amount *big.Int) bool {
	logger := c.logger.WithFields(logrus.Fields{
		"symbol":        token.Symbol,
		"src_chain_id":  srcChainID,
		"dest_chain_id": destChainID,
	})

	if token.Type != entity.TokenTypeETH && token.Type != entity.TokenTypeERC20 {
		return true
	}
	route, err := c.routing.Get(destChainID, srcChainID)
	if err != nil {
		logger.WithError(err).Warn("can't check quota")
		return true
	}
	if route.QuotaManagerAddress == (common.Address{}) {
		return true
	}

	var tokenAddr common.Address
	if token.Type == entity.TokenTypeERC20 {
		tokenAddr, err = c.CanonicalAddress(ctx, token, srcChainID, destChainID)
		if err != nil {
			logger.WithError(err).Warn("can't resolve canonical token, allowing transfer")
			return true
		}
	}

	client, err := c.clients.Get(destChainID)
	if err != nil {
		logger.WithError(err).Warn("can't check quota")
		return true
	}
	available, err := contract.NewQuotaManagerContract(client, route.QuotaManagerAddress).AvailableQuota(ctx, tokenAddr, 0)
	if err != nil {
		logger.WithError(err).Warn("can't read available quota, allowing transfer")
		return true
	}
	logger.WithFields(logrus.Fields{
		"token":     tokenAddr,
		"available": available.String(),
	}).Debug("read available quota")
	return available.Cmp(amount) >= 0
}

// CanonicalAddress resolves the address of the token on its origin chain, starting from the source chain address.
// A token the source vault does not know as bridged is canonical on the source chain.
func (c *Checker) CanonicalAddress(ctx context.Context, token *entity.Token, srcChainID, destChainID uint64) (common.Address, error) {
	srcAddr, ok := token.Address(srcChainID)
	if !ok {
		return common.Address{}, fmt.Errorf("token %s has no address on chain %d: %w", token.Symbol, srcChainID, entity.ErrConfiguration)
	}
	route, err := c.routing.Get(srcChainID, destChainID)
	if err != nil {
		return common.Address{}, err
	}
	if route.ERC20VaultAddress == (common.Address{}) {
		return srcAddr, nil
	}
	client, err := c.clients.Get(srcChainID)
	if err != nil {
		return common.Address{}, err
	}
	_, canonical, err := contract.NewVaultContract(client, route.ERC20VaultAddress).BridgedToCanonical(ctx, srcAddr)
	if err != nil {
		return common.Address{}, err
	}
	if canonical == (common.Address{}) {
		return srcAddr, nil
	}
	return canonical, nil
}
