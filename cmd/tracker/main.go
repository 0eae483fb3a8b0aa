package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omni/bridge-tx-tracker/config"
	"github.com/omni/bridge-tx-tracker/db"
	"github.com/omni/bridge-tx-tracker/delay"
	"github.com/omni/bridge-tx-tracker/ethclient"
	"github.com/omni/bridge-tx-tracker/fee"
	"github.com/omni/bridge-tx-tracker/logging"
	"github.com/omni/bridge-tx-tracker/poller"
	"github.com/omni/bridge-tx-tracker/presenter"
	"github.com/omni/bridge-tx-tracker/quota"
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

	dbConn, err := db.ConnectToDBAndMigrate(cfg.DBConfig)
	if err != nil {
		logger.WithError(err).Fatal("can't connect to database and apply migrations")
	}
	defer dbConn.Close()

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		err := http.ListenAndServe(":2112", nil)
		if err != nil {
			logger.WithError(err).Fatal("can't start listener for prometheus metrics")
		}
	}()

	clients, err := ethclient.DialAll(cfg.Chains)
	if err != nil {
		logger.WithError(err).Fatal("can't dial rpc clients")
	}

	repo := repository.NewRepo(dbConn)
	relayerClient := relayer.NewClient(logger.WithField("service", "relayer"), cfg.Relayer, cfg.Routing)
	calculator := delay.NewCalculator(logger.WithField("service", "delay"), clients, cfg.Routing, cfg.Delays)
	service := txsync.NewService(logger.WithField("service", "txsync"), repo.BridgeTransactions, relayerClient, clients, cfg.Routing, cfg.Sync)
	registry := poller.NewRegistry(logger.WithField("service", "poller"), poller.Readers{
		Status: service,
		Delays: calculator,
		Blocks: relayerClient,
	}, cfg.Poller)

	if cfg.Presenter != nil {
		pr := presenter.NewPresenter(logger.WithField("service", "presenter"), presenter.Services{
			Transactions: service,
			Fees:         fee.NewEstimator(logger.WithField("service", "fee"), clients, cfg.Routing, cfg.GasLimits),
			Quotas:       quota.NewChecker(logger.WithField("service", "quota"), clients, cfg.Routing),
			Delays:       calculator,
			Watchers:     registry,
			RelayerFees:  relayerClient,
		}, cfg.TokensBySymbol())
		go func() {
			err := pr.Serve(cfg.Presenter.Host)
			if err != nil {
				logger.WithError(err).Fatal("can't serve presenter")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go service.Start(ctx)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	for range c {
		cancel()
		logger.Warn("caught CTRL-C, gracefully terminating")
		registry.StopAll()
		return
	}
}
