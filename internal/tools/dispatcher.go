package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kalambet/hrassist/internal/metrics"
	"github.com/kalambet/hrassist/internal/retrieval"
)

const (
	DefaultTimeout       = 5 * time.Second
	DefaultRatePerSecond = 5.0

	maxResponseBytes = 1 << 20
	maxErrorBody     = 200
)

// ToolExecutionError means a validated call could not be completed: the data
// service was unreachable, timed out, or answered with a non-2xx status.
type ToolExecutionError struct {
	Tool       string
	StatusCode int
	Err        error
}

func (e *ToolExecutionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tool %s failed with status %d: %v", e.Tool, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time.
func (e *ToolExecutionError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Result is the output of a successful call.
type Result struct {
	Call    Call
	Output  string
	Sources []retrieval.Source
}

// DocumentSearcher answers retrieval tools.
type DocumentSearcher interface {
	Build(ctx context.Context, question string) (retrieval.ContextBlock, error)
}

// Dispatcher validates and executes tool calls.
type Dispatcher struct {
	registry   *Registry
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	searcher   DocumentSearcher
	logger     *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout bounds each data service request.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithRateLimit caps data service requests per second. A non-positive rate
// disables limiting.
func WithRateLimit(perSecond float64) DispatcherOption {
	return func(d *Dispatcher) {
		if perSecond <= 0 {
			d.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithSearcher sets the backend for retrieval tools.
func WithSearcher(s DocumentSearcher) DispatcherOption {
	return func(d *Dispatcher) { d.searcher = s }
}

// NewDispatcher creates a Dispatcher for the data service at baseURL.
func NewDispatcher(registry *Registry, baseURL string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:   registry,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	WithRateLimit(DefaultRatePerSecond)(d)
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch validates call and executes it once. It returns an
// *InvalidToolCallError without executing anything when validation fails,
// and a *ToolExecutionError when execution fails. No call is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (Result, error) {
	valid, err := d.registry.Validate(call)
	if err != nil {
		d.logger.Warn("tool call rejected", "tool", call.Name, "error", err)
		metrics.ObserveToolCall(metricName(d.registry, call.Name), "invalid")
		return Result{}, err
	}
	def, _ := d.registry.Get(valid.Name)

	var res Result
	switch def.Kind {
	case KindRetrieval:
		res, err = d.search(ctx, valid)
	default:
		res, err = d.fetch(ctx, def, valid)
	}
	if err != nil {
		d.logger.Warn("tool call failed", "tool", valid.Name, "error", err)
		metrics.ObserveToolCall(valid.Name, "failed")
		return Result{}, err
	}
	d.logger.Debug("tool call succeeded", "tool", valid.Name, "bytes", len(res.Output))
	metrics.ObserveToolCall(valid.Name, "ok")
	return res, nil
}

// metricName keeps label cardinality bounded when the model invents tools.
func metricName(r *Registry, name string) string {
	if _, ok := r.Get(name); ok {
		return name
	}
	return "unknown"
}

func (d *Dispatcher) search(ctx context.Context, call Call) (Result, error) {
	if d.searcher == nil {
		return Result{}, &ToolExecutionError{Tool: call.Name, Err: errors.New("document search is not configured")}
	}
	query, _ := call.Args["query"].(string)
	block, err := d.searcher.Build(ctx, query)
	var rerr *retrieval.RetrievalError
	if err != nil && !errors.As(err, &rerr) {
		return Result{}, &ToolExecutionError{Tool: call.Name, Err: err}
	}
	return Result{Call: call, Output: block.Text, Sources: block.Sources}, nil
}

func (d *Dispatcher) fetch(ctx context.Context, def Definition, call Call) (Result, error) {
	target, err := d.buildURL(def, call)
	if err != nil {
		return Result{}, &ToolExecutionError{Tool: call.Name, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		return Result{}, &ToolExecutionError{Tool: call.Name, Err: fmt.Errorf("rate limit: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{}, &ToolExecutionError{Tool: call.Name, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return Result{}, &ToolExecutionError{Tool: call.Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, &ToolExecutionError{Tool: call.Name, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &ToolExecutionError{
			Tool:       call.Name,
			StatusCode: resp.StatusCode,
			Err:        errors.New(errorDetail(body)),
		}
	}

	return Result{Call: call, Output: compactJSON(body)}, nil
}

// buildURL fills {param} placeholders in the tool path and sends the
// remaining arguments as query parameters.
func (d *Dispatcher) buildURL(def Definition, call Call) (string, error) {
	if d.baseURL == "" {
		return "", errors.New("data service URL is not configured")
	}
	used := make(map[string]bool)
	var missing string
	path := placeholderPattern.ReplaceAllStringFunc(def.Path, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := call.Args[name]
		if !ok {
			missing = name
			return m
		}
		used[name] = true
		return url.PathEscape(formatArg(v))
	})
	if missing != "" {
		return "", fmt.Errorf("no value for path parameter %q", missing)
	}

	q := url.Values{}
	for k, v := range call.Args {
		if !used[k] {
			q.Set(k, formatArg(v))
		}
	}
	target := d.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	return target, nil
}

func formatArg(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return formatValue(v)
}

func compactJSON(body []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err == nil {
		return buf.String()
	}
	return strings.TrimSpace(string(body))
}

// errorDetail extracts a short message from an error response body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
		Error  any    `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if s, ok := payload.Error.(string); ok && s != "" {
			return s
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
