package donation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"donation-agent/internal/status"
	"donation-agent/models"
	"donation-agent/monitoring"
	"donation-agent/utils"

	"github.com/rs/zerolog"
)

const (
	opCreateSession = "create_session"
	opFetchStatus   = "fetch_status"
)

type Config struct {
	// BaseURL is the root of the donation service, without trailing slash.
	BaseURL string
	// Timeout bounds a single request.
	Timeout time.Duration
	// Breaker tunes the circuit breaker in front of the service.
	Breaker utils.BreakerSettings
}

// Client talks to the remote donation service. Every call issues at most one
// request; failures come back as status.ErrTransport or status.ErrService.
type Client struct {
	// baseURL is the root of the donation service API.
	baseURL string

	// hc is the http client.
	hc *http.Client

	// breaker refuses calls while the service keeps failing.
	breaker *utils.CircuitBreaker

	monitor *monitoring.Monitor
	log     zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func WithMonitor(m *monitoring.Monitor) Option {
	return func(c *Client) { c.monitor = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates new instance of the donation service client.
func NewClient(cfg *Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breakerSettings := cfg.Breaker
	// Only an unreachable service should trip the breaker.
	breakerSettings.IsSuccessful = func(err error) bool {
		return err == nil || !errors.Is(err, status.ErrTransport)
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),

		// set http client with timeout.
		hc: &http.Client{
			Timeout: timeout,
		},

		breaker: utils.NewCircuitBreaker("donation-service", breakerSettings),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker exposes the circuit breaker guarding the service, for health checks.
func (c *Client) Breaker() *utils.CircuitBreaker {
	return c.breaker
}

// CreateSession asks the service for a payment page for req.
func (c *Client) CreateSession(ctx context.Context, req *models.DonationRequest) (*models.DonationSession, error) {
	start := time.Now()
	res, err := c.breaker.Execute(ctx, func() (any, error) {
		return c.createSession(ctx, req)
	})
	err = c.classify(opCreateSession, err)
	c.track(opCreateSession, err, start)
	if err != nil {
		return nil, err
	}
	return res.(*models.DonationSession), nil
}

// FetchStatus reads the outcome of a transaction. It refuses an empty id
// without touching the network.
func (c *Client) FetchStatus(ctx context.Context, transactionID string) (*models.TransactionStatus, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, fmt.Errorf("fetchStatus: transaction id is empty: %w", status.ErrValidation)
	}

	start := time.Now()
	res, err := c.breaker.Execute(ctx, func() (any, error) {
		return c.fetchStatus(ctx, transactionID)
	})
	err = c.classify(opFetchStatus, err)
	c.track(opFetchStatus, err, start)
	if err != nil {
		return nil, err
	}
	return res.(*models.TransactionStatus), nil
}

func (c *Client) createSession(ctx context.Context, r *models.DonationRequest) (*models.DonationSession, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("createSession: json.Marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/donation", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("createSession: http.NewRequestWithContext: %w: %w", status.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("createSession: http.Do: %w: %w", status.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rbody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("createSession: resp.StatusCode: %d, resp.Body: %s: %w", resp.StatusCode, rbody, status.ErrTransport)
	}

	var reply models.DonationSession
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("createSession: json.Decode: %w: %w", status.ErrService, err)
	}

	reply.PaymentURL = strings.TrimSpace(reply.PaymentURL)
	if reply.PaymentURL == "" {
		return nil, fmt.Errorf("createSession: reply.payment_url is missing: %w", status.ErrService)
	}

	return &reply, nil
}

func (c *Client) fetchStatus(ctx context.Context, transactionID string) (*models.TransactionStatus, error) {
	endpoint := fmt.Sprintf("%s/api/donation/%s/status", c.baseURL, url.PathEscape(transactionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("fetchStatus: http.NewRequestWithContext: %w: %w", status.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetchStatus: http.Do: %w: %w", status.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rbody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("fetchStatus: resp.StatusCode: %d, resp.Body: %s: %w", resp.StatusCode, rbody, status.ErrTransport)
	}

	var reply models.TransactionStatus
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("fetchStatus: json.Decode: %w: %w", status.ErrService, err)
	}
	if reply.TransactionID == "" {
		reply.TransactionID = transactionID
	}

	return &reply, nil
}

// classify makes sure every failure leaving the client carries a domain kind.
func (c *Client) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, status.ErrTransport), errors.Is(err, status.ErrService):
		return err
	case errors.Is(err, utils.ErrBreakerOpen), errors.Is(err, utils.ErrTooManyRequests):
		return fmt.Errorf("%s: %w: %w", op, status.ErrTransport, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, status.ErrTransport, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, status.ErrService, err)
	}
}

func (c *Client) track(op string, err error, start time.Time) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, utils.ErrBreakerOpen), errors.Is(err, utils.ErrTooManyRequests):
		outcome = "breaker_open"
	case errors.Is(err, status.ErrTransport):
		outcome = "transport_error"
	default:
		outcome = "service_error"
	}

	c.monitor.TrackRemoteCall(op, outcome, time.Since(start))
	if err != nil {
		c.log.Warn().Err(err).Str("operation", op).Str("outcome", outcome).Msg("donation service call failed")
	}
}
