package repository

import (
	"github.com/omni/bridge-tx-tracker/db"
	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/repository/postgres"
)

type Repo struct {
	BridgeTransactions entity.BridgeTransactionsRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		BridgeTransactions: postgres.NewBridgeTransactionsRepo("bridge_transactions", db),
	}
}
