package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultRateLimitWait = 60 * time.Second

// GatewayClient sends messages through an HTTP WhatsApp gateway. A local
// rate limiter runs ahead of every call as a hard transport-level cap,
// independent of the scheduler's own pacing.
type GatewayClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

func NewGatewayClient(baseURL, apiKey string, sendsPerSecond float64, log zerolog.Logger) *GatewayClient {
	if sendsPerSecond <= 0 {
		sendsPerSecond = 1
	}
	return &GatewayClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(sendsPerSecond), 1),
		log:     log.With().Str("component", "gateway").Logger(),
	}
}

type gatewaySendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type gatewaySendResponse struct {
	MessageID    string `json:"message_id"`
	Error        string `json:"error"`
	RetryAfterMS int64  `json:"retry_after_ms"`
}

func (c *GatewayClient) Send(ctx context.Context, destination, text string) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	payload, err := json.Marshal(gatewaySendRequest{To: destination, Body: text})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var decoded gatewaySendResponse
	_ = json.Unmarshal(body, &decoded)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return Result{Success: true, ExternalMessageID: decoded.MessageID}, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		wait := rateLimitWait(resp, &decoded)
		c.log.Debug().Dur("wait", wait).Msg("gateway rate limited")
		return Result{RateLimited: true, Wait: wait}, nil

	default:
		reason := decoded.Error
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return Result{}, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, reason)
	}
}

func rateLimitWait(resp *http.Response, decoded *gatewaySendResponse) time.Duration {
	if decoded.RetryAfterMS > 0 {
		return time.Duration(decoded.RetryAfterMS) * time.Millisecond
	}
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRateLimitWait
}

var _ ChannelSender = (*GatewayClient)(nil)
