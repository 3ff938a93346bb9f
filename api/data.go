// Package api contains the HTTP clients for the exchange surfaces the bot
// talks to: the data API (activity feed, positions), the CLOB (orders), and
// the Polygon JSON-RPC endpoint (USDC balance).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/0xHamad/polymarket-copy-bot/models"
)

const (
	// USDC contract on Polygon (bridged USDC, what Polymarket settles in)
	USDCContractPolygon = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	defaultDataAPIURL = "https://data-api.polymarket.com"
	defaultRPCURL     = "https://polygon-rpc.com"
)

// DataClient queries the public data API for trade activity and positions.
type DataClient struct {
	baseURL    string
	rpcURL     string
	httpClient *http.Client
}

// NewDataClient creates a data API client. Empty arguments select the public
// endpoints.
func NewDataClient(baseURL, rpcURL string) *DataClient {
	if baseURL == "" {
		baseURL = defaultDataAPIURL
	}
	if rpcURL == "" {
		rpcURL = defaultRPCURL
	}
	return &DataClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		rpcURL:  rpcURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// activityEntry is the wire shape of one activity feed row.
type activityEntry struct {
	ID              string  `json:"id"`
	ProxyWallet     string  `json:"proxyWallet"`
	Timestamp       int64   `json:"timestamp"`
	Type            string  `json:"type"`
	Asset           string  `json:"asset"`
	Side            string  `json:"side"`
	Price           float64 `json:"price"`
	Size            float64 `json:"size"`
	UsdcSize        float64 `json:"usdcSize"`
	Outcome         string  `json:"outcome"`
	Title           string  `json:"title"`
	TransactionHash string  `json:"transactionHash"`
}

// GetRecentTrades fetches the most recent trades by wallet, newest first.
func (c *DataClient) GetRecentTrades(ctx context.Context, wallet string, limit int) ([]models.Trade, error) {
	values := url.Values{}
	values.Set("user", strings.ToLower(wallet))
	values.Set("type", "TRADE")
	values.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/activity?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch activity failed: %d %s", resp.StatusCode, string(body))
	}

	var entries []activityEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}

	trades := make([]models.Trade, 0, len(entries))
	for _, e := range entries {
		if e.Type != "" && e.Type != "TRADE" {
			continue // REDEEM, SPLIT, MERGE
		}

		id := e.ID
		if id == "" {
			// The feed does not always carry a row id; hash+asset+side is
			// unique per fill.
			id = e.TransactionHash + ":" + e.Asset + ":" + e.Side
		}

		trades = append(trades, models.Trade{
			ID:        id,
			Wallet:    e.ProxyWallet,
			TokenID:   e.Asset,
			Side:      strings.ToUpper(e.Side),
			Price:     e.Price,
			Size:      e.Size,
			UsdcSize:  e.UsdcSize,
			Outcome:   e.Outcome,
			Title:     e.Title,
			Timestamp: time.Unix(e.Timestamp, 0),
		})
	}

	return trades, nil
}

// GetPositions fetches the open positions held by wallet.
func (c *DataClient) GetPositions(ctx context.Context, wallet string) ([]models.OwnPosition, error) {
	values := url.Values{}
	values.Set("user", strings.ToLower(wallet))

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/positions?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch positions failed: %d %s", resp.StatusCode, string(body))
	}

	var positions []models.OwnPosition
	if err := json.NewDecoder(resp.Body).Decode(&positions); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}

	return positions, nil
}

// GetOnChainUSDCBalance reads the wallet's USDC balance with a raw
// eth_call to balanceOf on the USDC contract.
func (c *DataClient) GetOnChainUSDCBalance(ctx context.Context, walletAddress string) (float64, error) {
	walletAddress = strings.ToLower(strings.TrimSpace(walletAddress))
	if !strings.HasPrefix(walletAddress, "0x") {
		walletAddress = "0x" + walletAddress
	}

	// Pad address to 32 bytes for the balanceOf(address) argument
	paddedAddr := strings.TrimPrefix(walletAddress, "0x")
	paddedAddr = fmt.Sprintf("%064s", paddedAddr)

	// balanceOf(address) function selector: 0x70a08231
	data := "0x70a08231" + paddedAddr

	reqBody := fmt.Sprintf(`{
		"jsonrpc": "2.0",
		"method": "eth_call",
		"params": [{
			"to": "%s",
			"data": "%s"
		}, "latest"],
		"id": 1
	}`, USDCContractPolygon, data)

	req, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, strings.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rpc request: %w", err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result string `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return 0, fmt.Errorf("rpc error: %s", rpcResp.Error.Message)
	}

	result := strings.TrimPrefix(rpcResp.Result, "0x")
	if result == "" || result == "0" {
		return 0, nil
	}

	balance := new(big.Int)
	if _, ok := balance.SetString(result, 16); !ok {
		return 0, fmt.Errorf("parse balance hex %q", rpcResp.Result)
	}

	// USDC has 6 decimals
	balanceFloat := new(big.Float).SetInt(balance)
	balanceFloat.Quo(balanceFloat, big.NewFloat(1e6))
	value, _ := balanceFloat.Float64()

	return value, nil
}
