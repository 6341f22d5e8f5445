package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"kraken-trade-bot-go/internal/config"
)

const (
	baseURL     = "https://api.kraken.com"
	publicPath  = "/0/public/"
	privatePath = "/0/private/"

	OrderTypeMarket = "market"
	OrderSideBuy    = "buy"
	OrderSideSell   = "sell"
)

// RestClientInterface defines the interface for the Kraken REST API client.
type RestClientInterface interface {
	GetSystemStatus(ctx context.Context) (*SystemStatus, error)
	GetAssetPairs(ctx context.Context) (map[string]AssetPairInfo, error)
	GetTicker(ctx context.Context, pair string) (*TickerInfo, error)
	GetBalance(ctx context.Context) (map[string]float64, error)
	AddOrder(ctx context.Context, pair, side string, volume float64) (*AddOrderResponse, error)
}

// RestClient is a client for the Kraken REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
	nonce     func() string
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Kraken REST API client.
func NewRestClient(cfg *config.Kraken, logger *zap.Logger) *RestClient {
	client := resty.New().SetBaseURL(baseURL)

	// Initialize the rate limiter
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger,
		limiter:   limiter,
		nonce: func() string {
			return strconv.FormatInt(time.Now().UnixMicro(), 10)
		},
	}
}

// APIError is returned when Kraken answers with a non-empty error list.
// A transport-level 200 with errors in the envelope is still a failure.
type APIError struct {
	Errors []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kraken api error: %v", e.Errors)
}

// envelope is the wrapper Kraken puts around every response payload.
type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// sign creates the API-Sign header value for a private request:
// base64(HMAC-SHA512(path + SHA256(nonce + postdata), base64-decoded secret)).
func (c *RestClient) sign(path, nonce, postData string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(c.secretKey)
	if err != nil {
		return "", fmt.Errorf("invalid secret key: %w", err)
	}

	digest := sha256.Sum256([]byte(nonce + postData))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry. Transport-level
		// failures surface through err with a stub response, so they are
		// classified by err, not by the response.
		shouldRetry := false
		var retryAfter time.Duration

		if err != nil || resp == nil {
			// Network or other client-side errors
			shouldRetry = true
		} else {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
	}
	return nil, fmt.Errorf("request failed after %d attempts with status %s", maxRetries, resp.Status())
}

// queryPublic performs a public API call and unmarshals the envelope result into out.
func (c *RestClient) queryPublic(ctx context.Context, endpoint string, params url.Values, out any) error {
	req := c.client.R().SetResult(&envelope{})
	if len(params) > 0 {
		req.SetQueryParamsFromValues(params)
	}

	resp, err := c.doRequest(ctx, "GET", publicPath+endpoint, req)
	if err != nil {
		return err
	}

	return decodeEnvelope(resp.Result().(*envelope), out)
}

// queryPrivate performs an authenticated API call and unmarshals the envelope result into out.
func (c *RestClient) queryPrivate(ctx context.Context, endpoint string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	nonce := c.nonce()
	params.Set("nonce", nonce)
	postData := params.Encode()

	path := privatePath + endpoint
	signature, err := c.sign(path, nonce, postData)
	if err != nil {
		return err
	}

	req := c.client.R().
		SetHeader("API-Key", c.apiKey).
		SetHeader("API-Sign", signature).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(postData).
		SetResult(&envelope{})

	resp, err := c.doRequest(ctx, "POST", path, req)
	if err != nil {
		return err
	}

	return decodeEnvelope(resp.Result().(*envelope), out)
}

func decodeEnvelope(env *envelope, out any) error {
	if len(env.Error) > 0 {
		return &APIError{Errors: env.Error}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// SystemStatus reports whether Kraken is accepting orders.
type SystemStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// GetSystemStatus fetches the current exchange status.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	var status SystemStatus
	if err := c.queryPublic(ctx, "SystemStatus", nil, &status); err != nil {
		c.logger.Error("Failed to get system status", zap.Error(err))
		return nil, fmt.Errorf("failed to get system status: %w", err)
	}
	return &status, nil
}

// AssetPairInfo describes a single tradable pair.
type AssetPairInfo struct {
	Altname string `json:"altname"`
	Base    string `json:"base"`
	Quote   string `json:"quote"`
	Status  string `json:"status"`
}

// GetAssetPairs fetches the full tradable pair table.
func (c *RestClient) GetAssetPairs(ctx context.Context) (map[string]AssetPairInfo, error) {
	pairs := make(map[string]AssetPairInfo)
	if err := c.queryPublic(ctx, "AssetPairs", nil, &pairs); err != nil {
		return nil, fmt.Errorf("failed to get asset pairs: %w", err)
	}
	return pairs, nil
}

// TradablePairs returns the altnames of all pairs quoted in the given asset.
func (c *RestClient) TradablePairs(ctx context.Context, quote string) ([]string, error) {
	pairs, err := c.GetAssetPairs(ctx)
	if err != nil {
		return nil, err
	}

	var altnames []string
	for _, info := range pairs {
		if info.Quote == quote {
			altnames = append(altnames, info.Altname)
		}
	}
	return altnames, nil
}

// TickerInfo carries the subset of ticker data the bot cares about.
type TickerInfo struct {
	Ask  []string `json:"a"`
	Bid  []string `json:"b"`
	Last []string `json:"c"`
}

// GetTicker fetches ticker information for a pair.
func (c *RestClient) GetTicker(ctx context.Context, pair string) (*TickerInfo, error) {
	params := url.Values{}
	params.Set("pair", pair)

	result := make(map[string]TickerInfo)
	if err := c.queryPublic(ctx, "Ticker", params, &result); err != nil {
		return nil, fmt.Errorf("failed to get ticker for %s: %w", pair, err)
	}

	// Kraken keys the result by its internal pair name, which may differ
	// from the requested one. There is only ever one entry.
	for _, info := range result {
		return &info, nil
	}
	return nil, fmt.Errorf("no ticker data returned for %s", pair)
}

// GetBalance fetches the account balance for all assets.
// Kraken reports amounts as strings; they are parsed into floats here.
func (c *RestClient) GetBalance(ctx context.Context) (map[string]float64, error) {
	raw := make(map[string]string)
	if err := c.queryPrivate(ctx, "Balance", nil, &raw); err != nil {
		c.logger.Error("Failed to get account balance", zap.Error(err))
		return nil, fmt.Errorf("failed to get account balance: %w", err)
	}

	balances := make(map[string]float64, len(raw))
	for asset, amountStr := range raw {
		amount, err := strconv.ParseFloat(amountStr, 64)
		if err != nil {
			c.logger.Warn("Skipping unparseable balance entry",
				zap.String("asset", asset), zap.String("amount", amountStr))
			continue
		}
		balances[asset] = amount
	}
	return balances, nil
}

// AddOrderResponse represents the response from placing a new order.
type AddOrderResponse struct {
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
	TxIDs []string `json:"txid"`
}

// AddOrder places a new market order on Kraken.
func (c *RestClient) AddOrder(ctx context.Context, pair, side string, volume float64) (*AddOrderResponse, error) {
	params := url.Values{}
	params.Set("pair", pair)
	params.Set("type", side)
	params.Set("ordertype", OrderTypeMarket)
	params.Set("volume", strconv.FormatFloat(volume, 'f', -1, 64))

	var result AddOrderResponse
	if err := c.queryPrivate(ctx, "AddOrder", params, &result); err != nil {
		c.logger.Error("Failed to create order",
			zap.Error(err),
			zap.String("pair", pair),
			zap.String("side", side),
		)
		return nil, fmt.Errorf("failed to create %s order for %s: %w", side, pair, err)
	}

	c.logger.Info("Successfully created order",
		zap.String("pair", pair),
		zap.String("side", side),
		zap.Float64("volume", volume),
		zap.Strings("txid", result.TxIDs),
	)
	return &result, nil
}
