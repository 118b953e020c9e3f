package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"launchpad/native/sale/settlement"
)

const (
	defaultMaxAttempts = 3
	defaultMinBackoff  = time.Second
	defaultMaxBackoff  = 10 * time.Second
	defaultQueueDepth  = 64
)

// Resolver receives the outcome of an executed movement. Implemented by
// the settlement pipeline.
type Resolver interface {
	Resolve(ctx context.Context, workflowID, authority string, res settlement.Result) error
}

type movement struct {
	Operation string `json:"operation"`
	Contract  string `json:"contract,omitempty"`
	Token     string `json:"token,omitempty"`
	Account   string `json:"account"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

// Client executes token movements against the ledger service and feeds
// the outcomes back into the settlement pipeline. Movements run on a
// single worker goroutine in submission order. Transport failures are
// retried with exponential backoff; a movement the ledger rejects (or
// that exhausts its retries) resolves as a failure so the pipeline can
// compensate.
type Client struct {
	baseURL     string
	resolver    Resolver
	client      *http.Client
	log         *slog.Logger
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan *settlement.Request
	wg     sync.WaitGroup
}

// Option mutates client configuration.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for movements.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			c.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			c.maxBackoff = maxBackoff
		}
	}
}

// NewClient constructs a ledger client and spawns its worker goroutine.
func NewClient(baseURL string, resolver Resolver, log *slog.Logger, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("ledger: base URL required")
	}
	if resolver == nil {
		return nil, errors.New("ledger: resolver required")
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		baseURL:     baseURL,
		resolver:    resolver,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log.With("component", "token_ledger"),
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan *settlement.Request, defaultQueueDepth),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.wg.Add(1)
	go c.worker()
	return c, nil
}

// Transfer enqueues a token transfer or native forward.
func (c *Client) Transfer(ctx context.Context, req *settlement.Request) error {
	return c.enqueue(ctx, req)
}

// Wrap enqueues a native-to-wrapped conversion.
func (c *Client) Wrap(ctx context.Context, req *settlement.Request) error {
	return c.enqueue(ctx, req)
}

// Unwrap enqueues a wrapped-to-native conversion.
func (c *Client) Unwrap(ctx context.Context, req *settlement.Request) error {
	return c.enqueue(ctx, req)
}

// enqueue never blocks: the pipeline calls the movement methods while
// holding its own lock, which the worker needs to deliver resolutions.
func (c *Client) enqueue(ctx context.Context, req *settlement.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.ctx.Done():
		return errors.New("ledger: client closed")
	default:
	}
	select {
	case c.queue <- req:
		return nil
	default:
		return errors.New("ledger: movement queue full")
	}
}

// Close stops the worker after the queued movements drain.
func (c *Client) Close() {
	c.cancel()
	close(c.queue)
	c.wg.Wait()
}

func endpointFor(kind settlement.RequestKind) string {
	switch kind {
	case settlement.RequestWrap:
		return "/wrap"
	case settlement.RequestUnwrap:
		return "/unwrap"
	case settlement.RequestNativeForward:
		return "/native/transfer"
	default:
		return "/transfer"
	}
}

func (c *Client) worker() {
	defer c.wg.Done()
	for req := range c.queue {
		err := c.execute(req)
		if err != nil {
			c.log.Warn("ledger movement failed",
				"workflow", req.WorkflowID, "kind", req.Kind.String(), "err", err)
		}
		res := settlement.Result{OK: err == nil}
		if err := c.resolver.Resolve(c.ctx, req.WorkflowID, req.Authority, res); err != nil {
			c.log.Error("ledger resolution rejected", "workflow", req.WorkflowID, "err", err)
		}
	}
}

func (c *Client) execute(req *settlement.Request) error {
	payload := movement{
		Operation: req.Kind.String(),
		Contract:  req.Contract,
		Token:     req.Token,
		Account:   req.Account,
		Amount:    req.Amount.String(),
		Reference: req.WorkflowID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	endpoint := c.baseURL + endpointFor(req.Kind)
	backoff := c.minBackoff
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-c.ctx.Done():
				return c.ctx.Err()
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}
		if lastErr = c.post(endpoint, body); lastErr == nil {
			return nil
		}
		// A rejection is final; only transport errors retry.
		var rejected *rejectionError
		if errors.As(lastErr, &rejected) {
			return lastErr
		}
	}
	return lastErr
}

type rejectionError struct {
	status int
}

func (e *rejectionError) Error() string {
	return fmt.Sprintf("ledger: movement rejected with status %d", e.status)
}

func (c *Client) post(endpoint string, body []byte) error {
	httpReq, err := http.NewRequestWithContext(c.ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &rejectionError{status: resp.StatusCode}
	default:
		return fmt.Errorf("ledger: status %d", resp.StatusCode)
	}
}
