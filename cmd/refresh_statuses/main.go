package main

import (
	"context"

	"github.com/omni/bridge-tx-tracker/config"
	"github.com/omni/bridge-tx-tracker/db"
	"github.com/omni/bridge-tx-tracker/ethclient"
	"github.com/omni/bridge-tx-tracker/logging"
	"github.com/omni/bridge-tx-tracker/relayer"
	"github.com/omni/bridge-tx-tracker/repository"
	"github.com/omni/bridge-tx-tracker/txsync"
)

func main() {
	logger := logging.New()

	cfg, err := config.ReadConfigFromFile("config.yml")
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	dbConn, err := db.NewDB(cfg.DBConfig)
	if err != nil {
		logger.WithError(err).Fatal("can't connect to database")
	}
	defer dbConn.Close()

	if err = dbConn.Migrate(); err != nil {
		logger.WithError(err).Fatal("can't run database migrations")
	}

	clients, err := ethclient.DialAll(cfg.Chains)
	if err != nil {
		logger.WithError(err).Fatal("can't dial rpc clients")
	}

	repo := repository.NewRepo(dbConn)
	relayerClient := relayer.NewClient(logger.WithField("service", "relayer"), cfg.Relayer, cfg.Routing)
	service := txsync.NewService(logger, repo.BridgeTransactions, relayerClient, clients, cfg.Routing, cfg.Sync)

	n, err := service.RefreshStatuses(context.Background())
	if err != nil {
		logger.WithError(err).WithField("updated", n).Fatal("can't refresh message statuses")
	}
	logger.WithField("updated", n).Info("refreshed pending message statuses")
}
