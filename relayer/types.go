package relayer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/omni/bridge-tx-tracker/contract"
	"github.com/omni/bridge-tx-tracker/entity"
)

const EventMessageSent = "MessageSent"

type EventType int

const (
	EventTypeSendETH EventType = iota
	EventTypeSendERC20
	EventTypeSendERC721
	EventTypeSendERC1155
)

func (t EventType) TokenType() entity.TokenType {
	switch t {
	case EventTypeSendERC20:
		return entity.TokenTypeERC20
	case EventTypeSendERC721:
		return entity.TokenTypeERC721
	case EventTypeSendERC1155:
		return entity.TokenTypeERC1155
	default:
		return entity.TokenTypeETH
	}
}

type PaginationParams struct {
	Page uint
	Size uint
}

type APIRequestParams struct {
	Address common.Address
	// ChainID is omitted from the request when zero.
	ChainID uint64
	Event   string
	PaginationParams
}

type PaginationInfo struct {
	Page       uint64 `json:"page"`
	Size       uint64 `json:"size"`
	Total      uint64 `json:"total"`
	TotalPages uint64 `json:"total_pages"`
	First      bool   `json:"first"`
	Last       bool   `json:"last"`
	MaxPage    uint64 `json:"max_page"`
}

type APIResponse struct {
	PaginationInfo
	Items []*APIResponseTransaction `json:"items"`
}

// RawLog is the subset of the indexed log the relayer returns with every event.
type RawLog struct {
	Address         string `json:"address"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
}

type EventData struct {
	Message *contract.BridgeMessage `json:"Message"`
	Raw     *RawLog                 `json:"Raw"`
}

type APIResponseTransaction struct {
	ID                     int                  `json:"id"`
	Name                   string               `json:"name"`
	Data                   *EventData           `json:"data"`
	Status                 entity.MessageStatus `json:"status"`
	EventType              EventType            `json:"eventType"`
	ChainID                uint64               `json:"chainID"`
	CanonicalTokenAddress  string               `json:"canonicalTokenAddress"`
	CanonicalTokenSymbol   string               `json:"canonicalTokenSymbol"`
	CanonicalTokenName     string               `json:"canonicalTokenName"`
	CanonicalTokenDecimals uint8                `json:"canonicalTokenDecimals"`
	Amount                 string               `json:"amount"`
	MsgHash                string               `json:"msgHash"`
	MessageOwner           string               `json:"messageOwner"`
	Event                  string               `json:"event"`
}

type BlockInfo struct {
	ChainID              uint64 `json:"chainID"`
	LatestProcessedBlock uint64 `json:"latestProcessedBlock"`
	LatestBlock          uint64 `json:"latestBlock"`
}

type FeeType string

const (
	FeeTypeETH     FeeType = "eth"
	FeeTypeERC20   FeeType = "erc20"
	FeeTypeERC721  FeeType = "erc721"
	FeeTypeERC1155 FeeType = "erc1155"
)

type Fee struct {
	Type        FeeType         `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	DestChainID uint64          `json:"destChainID"`
}
