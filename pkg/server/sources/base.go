package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/StrathCole/marketpulse/pkg/logging"
	"github.com/StrathCole/marketpulse/pkg/metrics"
	"github.com/StrathCole/marketpulse/pkg/version"
)

const (
	defaultHTTPTimeout      = 10 * time.Second
	defaultRateLimitWait    = 2 * time.Second
	defaultMaxRateLimitWait = 10 * time.Second
	maxResponseBytes        = 8 << 20
)

// BaseProvider provides common functionality for HTTP-backed providers:
// pair mapping, request execution, failure classification and one bounded
// retry on rate limiting.
type BaseProvider struct {
	name        string
	kind        FragmentKind
	pairs       map[string]string // asset symbol -> upstream identifier
	client      *http.Client
	cooldown    time.Duration
	maxCooldown time.Duration
	logger      *logging.Logger
}

// NewBaseProvider creates a base provider. Recognized config keys:
// timeout, rate_limit_cooldown, rate_limit_max_cooldown, logger.
func NewBaseProvider(name string, kind FragmentKind, pairs map[string]string, config map[string]interface{}) *BaseProvider {
	timeout := GetDurationFromConfig(config, "timeout", defaultHTTPTimeout)
	if pairs == nil {
		pairs = map[string]string{}
	}
	return &BaseProvider{
		name:        name,
		kind:        kind,
		pairs:       pairs,
		client:      &http.Client{Timeout: timeout},
		cooldown:    GetDurationFromConfig(config, "rate_limit_cooldown", defaultRateLimitWait),
		maxCooldown: GetDurationFromConfig(config, "rate_limit_max_cooldown", defaultMaxRateLimitWait),
		logger:      GetLoggerFromConfig(config).With("provider", name),
	}
}

// Name returns the provider name
func (b *BaseProvider) Name() string {
	return b.name
}

// Kind returns the fragment kind
func (b *BaseProvider) Kind() FragmentKind {
	return b.kind
}

// Logger returns the logger
func (b *BaseProvider) Logger() *logging.Logger {
	return b.logger
}

// PairFor returns the upstream identifier for an asset.
func (b *BaseProvider) PairFor(asset string) (string, bool) {
	p, ok := b.pairs[NormalizeAsset(asset)]
	return p, ok
}

// Succeeded returns an empty successful fragment for asset; the caller sets the payload.
func (b *BaseProvider) Succeeded(asset string) Fragment {
	return Fragment{
		Kind:      b.kind,
		Source:    b.name,
		Asset:     asset,
		FetchedAt: time.Now(),
	}
}

// Failed returns a failure fragment for asset.
func (b *BaseProvider) Failed(asset string, kind ErrorKind, err error) Fragment {
	return FailedFragment(b.kind, b.name, asset, NewFetchError(b.name, kind, err))
}

// FailedWith returns a failure fragment for an already classified error.
func (b *BaseProvider) FailedWith(asset string, fe *FetchError) Fragment {
	return FailedFragment(b.kind, b.name, asset, fe)
}

// GetJSON performs a GET request and decodes the JSON body into out.
// A 429 answer is retried once after the Retry-After cooldown (capped) or the default cooldown.
func (b *BaseProvider) GetJSON(ctx context.Context, url string, headers map[string]string, out interface{}) *FetchError {
	body, fe := b.Get(ctx, url, headers)
	if fe != nil {
		return fe
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewFetchError(b.name, ErrorKindBadResponse, fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return nil
}

// Get performs a GET request and returns the raw body of a 2xx answer.
func (b *BaseProvider) Get(ctx context.Context, url string, headers map[string]string) ([]byte, *FetchError) {
	start := time.Now()
	body, fe := b.get(ctx, url, headers)
	if fe != nil && fe.Kind == ErrorKindRateLimited {
		wait := b.cooldownFor(fe.retryAfter)
		b.logger.Warn("Rate limited, retrying once after cooldown", "url", url, "cooldown", wait.String())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			b.record(fe.FetchError, start)
			return nil, fe.FetchError
		case <-timer.C:
		}
		body, fe = b.get(ctx, url, headers)
	}
	if fe != nil {
		b.record(fe.FetchError, start)
		return nil, fe.FetchError
	}
	b.record(nil, start)
	return body, nil
}

// attemptError carries the parsed Retry-After of a rate-limited attempt.
type attemptError struct {
	*FetchError
	retryAfter time.Duration
}

func (b *BaseProvider) get(ctx context.Context, url string, headers map[string]string) ([]byte, *attemptError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, b.attemptFail(ErrorKindBadResponse, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.AgentString())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, b.attemptFail(classifyTransportError(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &attemptError{
			FetchError: NewFetchError(b.name, ErrorKindRateLimited, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, b.attemptFail(classifyTransportError(err), fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, b.attemptFail(ErrorKindBadResponse, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	}

	return body, nil
}

func (b *BaseProvider) attemptFail(kind ErrorKind, err error) *attemptError {
	return &attemptError{FetchError: NewFetchError(b.name, kind, err)}
}

// cooldownFor picks the wait before the single rate-limit retry.
func (b *BaseProvider) cooldownFor(retryAfter time.Duration) time.Duration {
	if retryAfter <= 0 {
		return b.cooldown
	}
	if retryAfter > b.maxCooldown {
		return b.maxCooldown
	}
	return retryAfter
}

func (b *BaseProvider) record(fe *FetchError, start time.Time) {
	result := "ok"
	if fe != nil {
		result = fe.Kind.String()
	}
	metrics.RecordUpstreamRequest(b.name, result, time.Since(start))
}

// classifyTransportError maps client errors onto Timeout or Unreachable.
func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}
	return ErrorKindUnreachable
}

// parseRetryAfter accepts delay-seconds or an HTTP date. Zero means absent or unparseable.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
