package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultGatewayTimeout   = 10 * time.Second
	defaultBreakerFailures  = 5
	defaultBreakerOpenDelay = 30 * time.Second
	maxGatewayResponseBytes = 1 << 20
)

// GatewayLogger receives structured gateway events.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

// GatewayConfig configures the HTTP gateway client.
type GatewayConfig struct {
	AppID       string
	Endpoint    string
	CallbackURL string
	Key1        string
	Key2        string
	Timeout     time.Duration

	// BreakerFailures is the number of consecutive transport failures that opens the breaker.
	BreakerFailures uint32
	// BreakerOpenFor is how long the breaker stays open before probing again.
	BreakerOpenFor time.Duration

	HTTPClient *http.Client
	Clock      func() time.Time
	Logger     GatewayLogger
}

// GatewayClient talks to the payment gateway's create endpoint and verifies its callbacks.
type GatewayClient struct {
	signer      Signer
	appID       string
	endpoint    string
	callbackURL string
	timeout     time.Duration
	http        *http.Client
	breaker     *gobreaker.CircuitBreaker[CreateResult]
	now         func() time.Time
	logger      GatewayLogger
}

var _ Gateway = (*GatewayClient)(nil)

// NewGatewayClient validates cfg and builds a client.
func NewGatewayClient(cfg GatewayConfig) (*GatewayClient, error) {
	signer, err := NewSigner(cfg.Key1, cfg.Key2)
	if err != nil {
		return nil, err
	}
	appID := strings.TrimSpace(cfg.AppID)
	if appID == "" {
		return nil, errors.New("payments: app id is required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("payments: invalid endpoint: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	openFor := cfg.BreakerOpenFor
	if openFor <= 0 {
		openFor = defaultBreakerOpenDelay
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	client := &GatewayClient{
		signer:      signer,
		appID:       appID,
		endpoint:    endpoint,
		callbackURL: strings.TrimSpace(cfg.CallbackURL),
		timeout:     timeout,
		http:        httpClient,
		now:         now,
		logger:      logger,
	}
	client.breaker = gobreaker.NewCircuitBreaker[CreateResult](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Business rejections mean the gateway is healthy.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrGatewayRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger(context.Background(), "payments.breaker_state", map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	return client, nil
}

// NewTransID returns a gateway transaction id in the yyMMdd_<ulid> format.
func (c *GatewayClient) NewTransID(now time.Time) string {
	return now.UTC().Format("060102") + "_" + ulid.Make().String()
}

// ParseCallback implements Gateway.
func (c *GatewayClient) ParseCallback(payload CallbackPayload) (CallbackEvent, error) {
	return c.signer.ParseCallback(payload)
}

type createResponse struct {
	ReturnCode       int    `json:"return_code"`
	ReturnMessage    string `json:"return_message"`
	SubReturnCode    int    `json:"sub_return_code"`
	SubReturnMessage string `json:"sub_return_message"`
	OrderURL         string `json:"order_url"`
	TransToken       string `json:"zp_trans_token"`
}

// CreatePayment signs and submits req. Transport failures, timeouts, and an open breaker are
// reported as ErrGatewayUnavailable; gateway refusals as ErrGatewayRejected.
func (c *GatewayClient) CreatePayment(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if strings.TrimSpace(req.TransID) == "" {
		return CreateResult{}, errors.New("payments: transaction id is required")
	}
	if req.Amount <= 0 {
		return CreateResult{}, errors.New("payments: amount must be positive")
	}

	form, err := c.buildForm(req)
	if err != nil {
		return CreateResult{}, err
	}

	result, err := c.breaker.Execute(func() (CreateResult, error) {
		return c.post(ctx, req.TransID, form)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger(ctx, "payments.breaker_rejected", map[string]any{"transId": req.TransID})
		return CreateResult{}, &GatewayError{Err: err}
	}
	return result, err
}

func (c *GatewayClient) buildForm(req CreateRequest) (url.Values, error) {
	requestedAt := req.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = c.now()
	}
	appTime := strconv.FormatInt(requestedAt.UnixMilli(), 10)
	amount := strconv.FormatInt(req.Amount, 10)
	appUser := strings.TrimSpace(req.AppUser)
	if appUser == "" {
		appUser = "guest"
	}

	embed := req.EmbedData
	if embed == nil {
		embed = map[string]string{}
	}
	embedJSON, err := json.Marshal(embed)
	if err != nil {
		return nil, fmt.Errorf("payments: encode embed data: %w", err)
	}
	items := req.Items
	if items == nil {
		items = []Item{}
	}
	itemJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("payments: encode items: %w", err)
	}

	form := url.Values{}
	form.Set("app_id", c.appID)
	form.Set("app_user", appUser)
	form.Set("app_trans_id", req.TransID)
	form.Set("app_time", appTime)
	form.Set("amount", amount)
	form.Set("embed_data", string(embedJSON))
	form.Set("item", string(itemJSON))
	form.Set("description", req.Description)
	if c.callbackURL != "" {
		form.Set("callback_url", c.callbackURL)
	}
	form.Set("mac", c.signer.SignRequest(c.appID, req.TransID, appUser, amount, appTime, string(embedJSON), string(itemJSON)))
	return form, nil
}

func (c *GatewayClient) post(ctx context.Context, transID string, form url.Values) (CreateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return CreateResult{}, &GatewayError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger(ctx, "payments.create_failed", map[string]any{
			"transId":  transID,
			"error":    err.Error(),
			"duration": c.now().Sub(start).String(),
		})
		return CreateResult{}, &GatewayError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponseBytes))
	if err != nil {
		return CreateResult{}, &GatewayError{HTTPStatus: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return CreateResult{}, &GatewayError{HTTPStatus: resp.StatusCode}
	}

	var decoded createResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return CreateResult{}, &GatewayError{HTTPStatus: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.ReturnCode != ReturnCodeSuccess {
		gwErr := &GatewayError{
			ReturnCode:       decoded.ReturnCode,
			ReturnMessage:    decoded.ReturnMessage,
			SubReturnCode:    decoded.SubReturnCode,
			SubReturnMessage: decoded.SubReturnMessage,
			HTTPStatus:       resp.StatusCode,
		}
		if gwErr.ReturnCode == 0 {
			// A body without a return code is not a business answer.
			gwErr.ReturnMessage = ""
		}
		c.logger(ctx, "payments.create_rejected", map[string]any{
			"transId":       transID,
			"returnCode":    decoded.ReturnCode,
			"subReturnCode": decoded.SubReturnCode,
			"message":       decoded.ReturnMessage,
		})
		return CreateResult{}, gwErr
	}

	return CreateResult{
		TransID:    transID,
		OrderURL:   decoded.OrderURL,
		TransToken: decoded.TransToken,
		Message:    decoded.ReturnMessage,
	}, nil
}
