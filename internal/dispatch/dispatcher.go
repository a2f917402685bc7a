// Package dispatch sends a request to an ordered list of candidate domains
// and returns the first response received.
package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/harrylevesque/firenet/internal/metrics"
)

const (
	// DefaultAttemptTimeout bounds one domain attempt, connect through body.
	DefaultAttemptTimeout = 5 * time.Second

	maxBodyBytes = 1 << 20
)

// ErrNoDomains is returned when the dispatcher has no candidates.
var ErrNoDomains = errors.New("dispatch: no domains configured")

// Request is one logical call. Path is joined onto each candidate domain.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Response is the raw reply of the first domain that answered.
// Any status code counts as an answer.
type Response struct {
	StatusCode int
	Body       string
	Domain     string
}

// Attempt records one failed domain attempt.
type Attempt struct {
	Domain string
	Err    error
}

// DispatchError aggregates every failed attempt of a request.
type DispatchError struct {
	Attempts []Attempt
}

func (e *DispatchError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Domain+": "+a.Err.Error())
	}
	return "all domains failed: " + strings.Join(parts, "; ")
}

func (e *DispatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Doer is what the session client needs from a dispatcher.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Dispatcher tries domains in order with a bounded wait per attempt.
type Dispatcher struct {
	domains []string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAttemptTimeout sets the per-domain wait.
func WithAttemptTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithRootCAs trusts pool for TLS connections.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(disp *Dispatcher) {
		if pool == nil {
			return
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
		disp.client = &http.Client{Transport: tr}
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(disp *Dispatcher) {
		if c != nil {
			disp.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.logger = l
		}
	}
}

// New builds a dispatcher over domains, dropping blanks and trailing slashes.
func New(domains []string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		timeout: DefaultAttemptTimeout,
		client:  &http.Client{},
		logger:  slog.Default(),
	}
	for _, raw := range domains {
		if dom := strings.TrimRight(strings.TrimSpace(raw), "/"); dom != "" {
			d.domains = append(d.domains, dom)
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Domains returns the candidate list in order.
func (d *Dispatcher) Domains() []string {
	return append([]string(nil), d.domains...)
}

// Do sends req to each domain in turn and returns the first response.
// Cancelling ctx stops before the next attempt.
func (d *Dispatcher) Do(ctx context.Context, req Request) (*Response, error) {
	if len(d.domains) == 0 {
		return nil, ErrNoDomains
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var failed DispatchError
	for _, domain := range d.domains {
		if err := ctx.Err(); err != nil {
			failed.Attempts = append(failed.Attempts, Attempt{Domain: domain, Err: err})
			break
		}
		resp, err := d.attempt(ctx, domain, method, req)
		if err == nil {
			return resp, nil
		}
		d.logger.Debug("dispatch attempt failed", "domain", domain, "path", req.Path, "err", err)
		failed.Attempts = append(failed.Attempts, Attempt{Domain: domain, Err: err})
	}
	return nil, &failed
}

func (d *Dispatcher) attempt(parent context.Context, domain, method string, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.DispatchDuration.WithLabelValues(domain).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, domain+req.Path, body)
	if err != nil {
		metrics.DispatchAttempts.WithLabelValues(domain, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		metrics.DispatchAttempts.WithLabelValues(domain, result(err)).Inc()
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.DispatchAttempts.WithLabelValues(domain, result(err)).Inc()
		return nil, fmt.Errorf("read body: %w", err)
	}
	metrics.DispatchAttempts.WithLabelValues(domain, "response").Inc()
	return &Response{StatusCode: resp.StatusCode, Body: string(data), Domain: domain}, nil
}

func result(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "timeout"
	}
	return "error"
}
