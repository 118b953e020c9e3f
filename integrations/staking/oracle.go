package staking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
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

// Resolver receives the outcome of an executed request. Implemented by
// the settlement pipeline.
type Resolver interface {
	Resolve(ctx context.Context, workflowID, authority string, res settlement.Result) error
}

type balanceQuery struct {
	Contract string `json:"contract"`
	Account  string `json:"account"`
}

type balanceReply struct {
	Staked string `json:"staked"`
}

// Client queries staking contracts over HTTP and feeds the results back
// into the settlement pipeline. Queries run on a single worker goroutine;
// transient transport failures are retried with exponential backoff, and
// an exhausted query resolves as a failure rather than hanging the
// workflow.
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

// WithHTTPClient overrides the HTTP client used for queries.
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

// NewClient constructs an oracle client and spawns its worker goroutine.
func NewClient(baseURL string, resolver Resolver, log *slog.Logger, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("staking: base URL required")
	}
	if resolver == nil {
		return nil, errors.New("staking: resolver required")
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		baseURL:     baseURL,
		resolver:    resolver,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log.With("component", "staking_oracle"),
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

// QueryStake enqueues a staked-balance query. The outcome arrives through
// the resolver. Enqueueing never blocks: the pipeline calls this while
// holding its own lock, which the worker needs to deliver resolutions.
func (c *Client) QueryStake(ctx context.Context, req *settlement.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.ctx.Done():
		return errors.New("staking: client closed")
	default:
	}
	select {
	case c.queue <- req:
		return nil
	default:
		return errors.New("staking: query queue full")
	}
}

// Close stops the worker after the queued requests drain.
func (c *Client) Close() {
	c.cancel()
	close(c.queue)
	c.wg.Wait()
}

func (c *Client) worker() {
	defer c.wg.Done()
	for req := range c.queue {
		staked, err := c.fetch(req)
		res := settlement.Result{}
		if err != nil {
			c.log.Warn("stake query failed", "workflow", req.WorkflowID, "contract", req.Contract, "err", err)
		} else {
			res.OK = true
			res.Value = staked
		}
		if err := c.resolver.Resolve(c.ctx, req.WorkflowID, req.Authority, res); err != nil {
			c.log.Error("stake resolution rejected", "workflow", req.WorkflowID, "err", err)
		}
	}
}

func (c *Client) fetch(req *settlement.Request) (*big.Int, error) {
	body, err := json.Marshal(balanceQuery{Contract: req.Contract, Account: req.Account})
	if err != nil {
		return nil, err
	}
	backoff := c.minBackoff
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-c.ctx.Done():
				return nil, c.ctx.Err()
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}
		staked, err := c.post(body)
		if err == nil {
			return staked, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) post(body []byte) (*big.Int, error) {
	httpReq, err := http.NewRequestWithContext(c.ctx, http.MethodPost, c.baseURL+"/stake/balance", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("staking: oracle returned status %d", resp.StatusCode)
	}
	var reply balanceReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, err
	}
	staked, ok := new(big.Int).SetString(strings.TrimSpace(reply.Staked), 10)
	if !ok {
		return nil, fmt.Errorf("staking: invalid staked balance %q", reply.Staked)
	}
	return staked, nil
}
