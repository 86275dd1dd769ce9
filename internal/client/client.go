package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/jondoveston/monitop/internal/snapshot"
)

// DefaultPrefix is where the monitoring service mounts its API
const DefaultPrefix = "/monigo/api/v1"

// DefaultTimeout bounds every request unless overridden
const DefaultTimeout = 10 * time.Second

// Endpoint names, relative to the API prefix
const (
	EndpointServiceInfo     = "service-info"
	EndpointMetrics         = "metrics"
	EndpointGoRoutines      = "go-routines-stats"
	EndpointServiceMetrics  = "service-metrics"
	EndpointReports         = "reports"
	EndpointFunctions       = "function"
	EndpointFunctionDetails = "function-details"
)

// maxErrorBody caps how much of an error response is kept in a StatusError
const maxErrorBody = 512

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Observer is told about every completed request
type Observer interface {
	ObservePoll(endpoint string, elapsed time.Duration, err error)
}

// Client talks to one monitoring service
type Client struct {
	base     *url.URL
	prefix   string
	doer     Doer
	timeout  time.Duration
	logger   logr.Logger
	observer Observer
	now      func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithDoer injects the HTTP client used for requests
func WithDoer(d Doer) Option {
	return func(c *Client) { c.doer = d }
}

// WithPrefix sets the API prefix, "" for services mounted at the root
func WithPrefix(prefix string) Option {
	return func(c *Client) { c.prefix = strings.TrimSuffix(prefix, "/") }
}

// WithTimeout sets the per-request timeout, zero disables it
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger
func WithLogger(l logr.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver registers a request observer
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithClock overrides the clock used to stamp snapshots
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client for the service at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("service url %q must include scheme and host", baseURL)
	}

	c := &Client{
		base:    u,
		prefix:  DefaultPrefix,
		doer:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  logr.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the service root the client was created with
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Prefix returns the API prefix in use
func (c *Client) Prefix() string {
	return c.prefix
}

// ServiceInfo fetches the service identity
func (c *Client) ServiceInfo(ctx context.Context) (*ServiceInfo, error) {
	var info ServiceInfo
	if err := c.do(ctx, http.MethodGet, EndpointServiceInfo, nil, nil, decodeJSON(&info)); err != nil {
		return nil, err
	}
	return &info, nil
}

// Metrics fetches a metrics snapshot with memory values in unit
func (c *Client) Metrics(ctx context.Context, unit string) (*snapshot.Snapshot, error) {
	var query url.Values
	if unit != "" {
		query = url.Values{"unit": []string{unit}}
	}

	var snap *snapshot.Snapshot
	err := c.do(ctx, http.MethodGet, EndpointMetrics, query, nil, func(r io.Reader) error {
		var err error
		snap, err = snapshot.Decode(r, unit, c.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// GoRoutines fetches the goroutine count and stack view
func (c *Client) GoRoutines(ctx context.Context) (*GoRoutinesStats, error) {
	var stats GoRoutinesStats
	if err := c.do(ctx, http.MethodGet, EndpointGoRoutines, nil, nil, decodeJSON(&stats)); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ServiceMetrics fetches stored history for the requested fields
func (c *Client) ServiceMetrics(ctx context.Context, req HistoryRequest) ([]snapshot.Point, error) {
	var points []snapshot.Point
	if err := c.do(ctx, http.MethodPost, EndpointServiceMetrics, nil, req, decodeJSON(&points)); err != nil {
		return nil, err
	}
	return points, nil
}

// Reports fetches report rows for a topic
func (c *Client) Reports(ctx context.Context, req ReportRequest) ([]ReportRow, error) {
	var rows []ReportRow
	if err := c.do(ctx, http.MethodPost, EndpointReports, nil, req, decodeJSON(&rows)); err != nil {
		return nil, err
	}
	return rows, nil
}

// Functions lists the traced functions
func (c *Client) Functions(ctx context.Context) (Functions, error) {
	fns := Functions{}
	if err := c.do(ctx, http.MethodGet, EndpointFunctions, nil, nil, decodeJSON(&fns)); err != nil {
		return nil, err
	}
	return fns, nil
}

// FunctionDetails fetches the profile of one traced function.
// reportType is one of text, traces or tree.
func (c *Client) FunctionDetails(ctx context.Context, name, reportType string) (*FunctionDetails, error) {
	query := url.Values{"name": []string{name}, "reportType": []string{reportType}}
	var details FunctionDetails
	if err := c.do(ctx, http.MethodGet, EndpointFunctionDetails, query, nil, decodeJSON(&details)); err != nil {
		return nil, err
	}
	return &details, nil
}

func (c *Client) endpointURL(endpoint string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + c.prefix + "/" + endpoint
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body any, decode func(io.Reader) error) (err error) {
	start := time.Now()
	requestID := uuid.NewString()
	log := c.logger.WithValues("endpoint", endpoint, "requestID", requestID)

	defer func() {
		elapsed := time.Since(start)
		if c.observer != nil {
			c.observer.ObservePoll(endpoint, elapsed, err)
		}
		switch {
		case err == nil:
			log.V(1).Info("request finished", "elapsed", elapsed)
		case IsCanceled(err):
			log.V(1).Info("request cancelled", "elapsed", elapsed)
		default:
			log.Error(err, "request failed", "elapsed", elapsed)
		}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpointURL(endpoint, query), reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if err := decode(resp.Body); err != nil {
		// a context cancelled mid-body surfaces here as a read error
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", method, endpoint, ctxErr)
		}
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

func decodeJSON(out any) func(io.Reader) error {
	return func(r io.Reader) error {
		return json.NewDecoder(r).Decode(out)
	}
}
