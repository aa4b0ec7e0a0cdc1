// Package payment drives a Kaspi POS terminal through the local agent proxy:
// registration, payment initiation, status polling and refunds.
package payment

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Global-Optima/zeep-print-agent/internal/kvstore"
	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

const (
	credentialKey = "payment.kaspi.credential"

	DefaultAgentURL     = "http://localhost:42999"
	DefaultPollInterval = time.Second
	defaultTimeout      = 60 * time.Second
)

type Config struct {
	AgentURL     string
	DeviceIP     string
	DevicePort   string
	DeviceProto  string
	Timeout      time.Duration
	PollInterval time.Duration
	InsecureTLS  bool
	Currency     string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// ConfigFrom maps the agent configuration onto a client config.
func ConfigFrom(pos model.POSConfig) Config {
	return Config{
		AgentURL:     pos.AgentURL,
		DeviceIP:     pos.DeviceIP,
		DevicePort:   pos.DevicePort,
		DeviceProto:  pos.DeviceProto,
		Timeout:      pos.Timeout,
		PollInterval: pos.PollInterval,
		InsecureTLS:  pos.InsecureTLS,
	}
}

// APIError is a non-2xx answer from the proxy or the terminal.
type APIError struct {
	HTTPStatus int
	StatusCode int
	Text       string
}

func (e *APIError) Error() string {
	msg := e.Text
	if msg == "" {
		msg = http.StatusText(e.HTTPStatus)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("terminal error: %s (code %d)", msg, e.StatusCode)
	}
	return fmt.Sprintf("terminal error: %s", msg)
}

// Is makes every API error match model.ErrTransport.
func (e *APIError) Is(target error) bool {
	return target == model.ErrTransport
}

type Client struct {
	cfg    Config
	http   *http.Client
	store  kvstore.Store
	logger *slog.Logger

	mu   sync.Mutex
	cred *Credential
}

// New builds a client and reloads a previously saved credential from store.
func New(ctx context.Context, cfg Config, store kvstore.Store) (*Client, error) {
	if cfg.AgentURL == "" {
		cfg.AgentURL = DefaultAgentURL
	}
	if cfg.DeviceIP == "" {
		return nil, errors.New("payment terminal ip is not configured")
	}
	if cfg.DevicePort == "" {
		cfg.DevicePort = "8080"
	}
	if cfg.DeviceProto == "" {
		cfg.DeviceProto = "https"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = "KZT"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureTLS {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		httpClient = &http.Client{Timeout: cfg.Timeout, Transport: transport}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		http:   httpClient,
		store:  store,
		logger: logger.With("component", "payment", "terminal", cfg.DeviceIP),
	}

	if store != nil {
		var cred Credential
		err := kvstore.GetJSON(ctx, store, credentialKey, &cred)
		switch {
		case err == nil && cred.AccessToken != "":
			c.cred = &cred
			c.logger.Info("loaded terminal credential", "cashier", cred.CashierName)
		case err != nil && !errors.Is(err, kvstore.ErrNotFound):
			c.logger.Warn("failed to load terminal credential", "error", err)
		}
	}
	return c, nil
}

// Registered reports whether a credential is available.
func (c *Client) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred != nil
}

// Register obtains a new credential for the named cashier and persists it.
func (c *Client) Register(ctx context.Context, cashier string) (Credential, error) {
	if strings.TrimSpace(cashier) == "" {
		return Credential{}, errors.New("cashier name is required")
	}

	var cred Credential
	if err := c.call(ctx, "register", url.Values{"name": {cashier}}, false, &cred); err != nil {
		return Credential{}, fmt.Errorf("failed to register terminal: %w", err)
	}
	cred.CashierName = cashier
	if err := c.setCredential(ctx, cred); err != nil {
		return Credential{}, err
	}
	c.logger.Info("terminal registered", "cashier", cashier)
	return cred, nil
}

// Refresh revokes the current token pair and stores the new one.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	current := c.cred
	c.mu.Unlock()
	if current == nil || current.CashierName == "" {
		return model.ErrAuthenticationRequired
	}

	params := url.Values{
		"name":         {current.CashierName},
		"refreshToken": {current.RefreshToken},
	}
	var cred Credential
	if err := c.call(ctx, "revoke", params, false, &cred); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.HTTPStatus == http.StatusUnauthorized || apiErr.HTTPStatus == http.StatusForbidden) {
			c.logger.Warn("terminal rejected refresh token, dropping credential", "error", err)
			if ferr := c.Forget(ctx); ferr != nil {
				c.logger.Warn("failed to drop terminal credential", "error", ferr)
			}
		}
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	cred.CashierName = current.CashierName
	if err := c.setCredential(ctx, cred); err != nil {
		return err
	}
	c.logger.Info("terminal token refreshed")
	return nil
}

// Initiate starts a payment for amount and returns the terminal process id.
func (c *Client) Initiate(ctx context.Context, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", model.ErrInvalidAmount
	}

	var resp processResponse
	if err := c.call(ctx, "payment", url.Values{"amount": {amount.String()}}, true, &resp); err != nil {
		return "", fmt.Errorf("failed to initiate payment: %w", err)
	}
	if resp.ProcessID == "" {
		return "", fmt.Errorf("%w: payment response without process id", model.ErrTransport)
	}
	c.logger.Info("payment initiated", "process", resp.ProcessID, "amount", amount.String())
	return resp.ProcessID, nil
}

// Status reads the current state of a payment process once.
func (c *Client) Status(ctx context.Context, processID string) (StatusResult, error) {
	var st StatusResult
	if err := c.call(ctx, "status", url.Values{"processId": {processID}}, true, &st); err != nil {
		return StatusResult{}, fmt.Errorf("failed to check transaction status: %w", err)
	}
	return st, nil
}

// Actualize asks the terminal for the final state of a process whose outcome was lost.
func (c *Client) Actualize(ctx context.Context, processID string) (StatusResult, error) {
	var st StatusResult
	if err := c.call(ctx, "actualize", url.Values{"processId": {processID}}, true, &st); err != nil {
		return StatusResult{}, fmt.Errorf("failed to actualize transaction: %w", err)
	}
	return st, nil
}

type RefundRequest struct {
	Amount        decimal.Decimal
	Method        model.PaymentMethod
	TransactionID string
}

// Refund starts a refund and returns its process id.
func (c *Client) Refund(ctx context.Context, req RefundRequest) (string, error) {
	if !req.Amount.IsPositive() {
		return "", model.ErrInvalidAmount
	}
	params := url.Values{
		"amount":        {req.Amount.String()},
		"method":        {string(req.Method)},
		"transactionId": {req.TransactionID},
	}
	var resp processResponse
	if err := c.call(ctx, "refund", params, true, &resp); err != nil {
		return "", fmt.Errorf("failed to refund payment: %w", err)
	}
	return resp.ProcessID, nil
}

func (c *Client) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	var info DeviceInfo
	if err := c.call(ctx, "deviceinfo", nil, true, &info); err != nil {
		return DeviceInfo{}, fmt.Errorf("failed to get device info: %w", err)
	}
	return info, nil
}

func (c *Client) setCredential(ctx context.Context, cred Credential) error {
	c.mu.Lock()
	c.cred = &cred
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if err := kvstore.SetJSON(ctx, c.store, credentialKey, cred); err != nil {
		return fmt.Errorf("failed to save terminal credential: %w", err)
	}
	return nil
}

// Forget drops the credential in memory and in the store; the terminal has to
// be registered again before the next payment.
func (c *Client) Forget(ctx context.Context) error {
	c.mu.Lock()
	c.cred = nil
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if err := c.store.Delete(ctx, credentialKey); err != nil {
		return fmt.Errorf("failed to delete terminal credential: %w", err)
	}
	return nil
}

func (c *Client) accessToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred == nil {
		return "", false
	}
	return c.cred.AccessToken, true
}

// call performs GET /proxy/<endpoint> and decodes the envelope's data into out.
// An authenticated call answered with 403 is refreshed and retried once.
func (c *Client) call(ctx context.Context, endpoint string, params url.Values, auth bool, out any) error {
	status, body, err := c.do(ctx, endpoint, params, auth)
	if err != nil {
		return err
	}
	if status == http.StatusForbidden && auth {
		c.logger.Warn("terminal rejected token, refreshing", "endpoint", endpoint)
		if err := c.Refresh(ctx); err != nil {
			return fmt.Errorf("%w: %v", model.ErrAuthenticationRequired, err)
		}
		status, body, err = c.do(ctx, endpoint, params, auth)
		if err != nil {
			return err
		}
		if status == http.StatusForbidden {
			return fmt.Errorf("%w: %v", model.ErrAuthenticationRequired, apiError(status, body))
		}
	}
	if status < 200 || status > 299 {
		return apiError(status, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", model.ErrTransport, endpoint, err)
	}
	if env.ErrorText != "" {
		return &APIError{HTTPStatus: status, StatusCode: env.StatusCode, Text: env.ErrorText}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode %s data: %v", model.ErrTransport, endpoint, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values, auth bool) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointURL(endpoint, params), nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", model.ErrTransport, err)
	}
	if auth {
		token, ok := c.accessToken()
		if !ok {
			return 0, nil, model.ErrAuthenticationRequired
		}
		req.Header.Set("accesstoken", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", model.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read %s response: %v", model.ErrTransport, endpoint, err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) endpointURL(endpoint string, params url.Values) string {
	q := url.Values{
		"ip":    {c.cfg.DeviceIP},
		"port":  {c.cfg.DevicePort},
		"proto": {c.cfg.DeviceProto},
	}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return strings.TrimRight(c.cfg.AgentURL, "/") + "/proxy/" + endpoint + "?" + q.Encode()
}

func apiError(status int, body []byte) error {
	apiErr := &APIError{HTTPStatus: status}
	var env envelope
	if json.Unmarshal(body, &env) == nil {
		apiErr.StatusCode = env.StatusCode
		apiErr.Text = env.ErrorText
	}
	return apiErr
}
