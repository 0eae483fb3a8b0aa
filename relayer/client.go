package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-tx-tracker/config"
	"github.com/omni/bridge-tx-tracker/entity"
	"github.com/omni/bridge-tx-tracker/logging"
)

var ErrBadStatus = errors.New("unexpected http status")

// Client reads indexed bridge events from the relayer HTTP API.
type Client struct {
	logger     logging.Logger
	baseURL    string
	pageSize   uint
	routing    config.Routing
	httpClient *http.Client
}

func NewClient(logger logging.Logger, cfg *config.RelayerConfig, routing config.Routing) *Client {
	return &Client{
		logger:   logger,
		baseURL:  strings.TrimSuffix(cfg.URL, "/"),
		pageSize: cfg.PageSize,
		routing:  routing,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *Client) PageSize() uint {
	return c.pageSize
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, res interface{}) error {
	timer := prometheus.NewTimer(RequestDurations.WithLabelValues(endpoint))
	defer timer.ObserveDuration()

	err := c.doGet(ctx, endpoint, query, res)
	if err != nil {
		RequestResults.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("relayer %s request failed: %w: %w", endpoint, entity.ErrNetwork, err)
	}
	RequestResults.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

func (c *Client) doGet(ctx context.Context, endpoint string, query url.Values, res interface{}) error {
	fullPath, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		fullPath += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.WithError(cerr).Warn("can't close response body")
		}
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
	}
	if err = json.NewDecoder(resp.Body).Decode(res); err != nil {
		return fmt.Errorf("can't decode response: %w", err)
	}
	return nil
}

func (c *Client) GetTransactionsFromAPI(ctx context.Context, params *APIRequestParams) (*APIResponse, error) {
	query := url.Values{}
	query.Set("address", params.Address.String())
	if params.ChainID != 0 {
		query.Set("chainID", strconv.FormatUint(params.ChainID, 10))
	}
	if params.Event != "" {
		query.Set("event", params.Event)
	}
	query.Set("page", strconv.FormatUint(uint64(params.Page), 10))
	query.Set("size", strconv.FormatUint(uint64(params.Size), 10))

	c.logger.WithFields(logrus.Fields{
		"address":  params.Address,
		"chain_id": params.ChainID,
		"page":     params.Page,
		"size":     params.Size,
	}).Debug("fetching events from relayer")

	res := new(APIResponse)
	if err := c.get(ctx, "events", query, res); err != nil {
		return nil, err
	}
	return res, nil
}

// GetAllBridgeTransactionsByAddress fetches one page of MessageSent events owned by addr.
// Message status is the one reported by the relayer.
func (c *Client) GetAllBridgeTransactionsByAddress(ctx context.Context, addr common.Address, pagination PaginationParams, chainID uint64) ([]*entity.BridgeTransaction, *PaginationInfo, error) {
	if pagination.Size == 0 {
		pagination.Size = c.pageSize
	}
	res, err := c.GetTransactionsFromAPI(ctx, &APIRequestParams{
		Address:          addr,
		ChainID:          chainID,
		Event:            EventMessageSent,
		PaginationParams: pagination,
	})
	if err != nil {
		return nil, nil, err
	}

	info := res.PaginationInfo
	txs := make([]*entity.BridgeTransaction, 0, len(res.Items))
	for _, item := range c.filterItems(res.Items) {
		tx, err2 := convertItem(item)
		if err2 != nil {
			c.logger.WithError(err2).WithField("tx_hash", item.Data.Raw.TransactionHash).Warn("can't convert relayer event")
			DroppedItems.WithLabelValues("malformed").Inc()
			continue
		}
		if tx.From != addr {
			DroppedItems.WithLabelValues("owner").Inc()
			continue
		}
		txs = append(txs, tx)
	}
	return txs, &info, nil
}

// filterItems drops events without data or message hash, repeated transaction hashes,
// events not emitted by the configured source bridge and events between unsupported chains.
func (c *Client) filterItems(items []*APIResponseTransaction) []*APIResponseTransaction {
	seen := make(map[string]bool, len(items))
	res := make([]*APIResponseTransaction, 0, len(items))
	for _, item := range items {
		if item.Data == nil || item.Data.Message == nil || item.Data.Raw == nil {
			DroppedItems.WithLabelValues("no_data").Inc()
			continue
		}
		msg, raw := item.Data.Message, item.Data.Raw
		if raw.TransactionHash == "" || raw.Address == "" {
			DroppedItems.WithLabelValues("no_data").Inc()
			continue
		}
		if item.MsgHash == "" || common.HexToHash(item.MsgHash) == (common.Hash{}) {
			DroppedItems.WithLabelValues("no_msg_hash").Inc()
			continue
		}
		txHash := strings.ToLower(raw.TransactionHash)
		if seen[txHash] {
			DroppedItems.WithLabelValues("duplicate").Inc()
			continue
		}
		seen[txHash] = true

		if !c.routing.IsSupportedChain(msg.SrcChainId) || !c.routing.IsSupportedChain(msg.DestChainId) {
			DroppedItems.WithLabelValues("unsupported_chain").Inc()
			continue
		}
		route, err := c.routing.Get(msg.SrcChainId, msg.DestChainId)
		if err != nil || !strings.EqualFold(route.BridgeAddress.String(), raw.Address) {
			DroppedItems.WithLabelValues("wrong_bridge").Inc()
			continue
		}
		res = append(res, item)
	}
	return res
}

func convertItem(item *APIResponseTransaction) (*entity.BridgeTransaction, error) {
	msg, raw := item.Data.Message, item.Data.Raw

	amount := decimal.Zero
	if item.Amount != "" {
		var err error
		if amount, err = decimal.NewFromString(item.Amount); err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", item.Amount, err)
		}
	}
	var blockNumber uint64
	if raw.BlockNumber != "" {
		var err error
		if blockNumber, err = hexutil.DecodeUint64(raw.BlockNumber); err != nil {
			return nil, fmt.Errorf("invalid block number %q: %w", raw.BlockNumber, err)
		}
	}
	symbol := item.CanonicalTokenSymbol
	if symbol == "" {
		symbol = "ETH"
	}

	return &entity.BridgeTransaction{
		Hash:        common.HexToHash(raw.TransactionHash),
		MsgHash:     common.HexToHash(item.MsgHash),
		SrcChainID:  msg.SrcChainId,
		DestChainID: msg.DestChainId,
		From:        common.HexToAddress(item.MessageOwner),
		Amount:      amount,
		Symbol:      symbol,
		Decimals:    item.CanonicalTokenDecimals,
		TokenType:   item.EventType.TokenType(),
		MsgStatus:   item.Status,
		BlockNumber: blockNumber,
	}, nil
}

func (c *Client) GetBlockInfo(ctx context.Context) (map[uint64]*BlockInfo, error) {
	var res struct {
		Data []*BlockInfo `json:"data"`
	}
	if err := c.get(ctx, "blockInfo", nil, &res); err != nil {
		return nil, err
	}
	infos := make(map[uint64]*BlockInfo, len(res.Data))
	for _, info := range res.Data {
		infos[info.ChainID] = info
	}
	return infos, nil
}

// RecommendedProcessingFees returns the relayer fee suggestions. Empty typeFilter and zero destChainID disable filtering.
func (c *Client) RecommendedProcessingFees(ctx context.Context, typeFilter FeeType, destChainID uint64) ([]*Fee, error) {
	var res struct {
		Fees []*Fee `json:"fees"`
	}
	if err := c.get(ctx, "recommendedProcessingFees", nil, &res); err != nil {
		return nil, err
	}
	fees := make([]*Fee, 0, len(res.Fees))
	for _, fee := range res.Fees {
		if typeFilter != "" && fee.Type != typeFilter {
			continue
		}
		if destChainID != 0 && fee.DestChainID != destChainID {
			continue
		}
		fees = append(fees, fee)
	}
	return fees, nil
}
