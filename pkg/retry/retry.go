// Package retry executes remote calls with a classified retry policy.
// Every outbound request in the pipeline goes through a Client built here;
// the policy decides which failures are worth retrying and how long to
// back off, and every attempt is mirrored into the structured error log.
package retry

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hubevents/btcimport/pkg/errlog"
)

// Policy holds the retry budget and backoff bounds.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// schemeErrorRe matches transport errors caused by an unsendable request
// rather than by the remote end.
var schemeErrorRe = regexp.MustCompile(`unsupported protocol scheme`)

// CheckRetry classifies a single attempt:
//   - 429 and 5xx responses are retried
//   - no response at all (network/timeout) is retried, unless the request
//     itself was unsendable (bad scheme, untrusted cert)
//   - 401/403 and every other 4xx surface immediately
func (p Policy) CheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		if v, ok := err.(*url.Error); ok {
			if schemeErrorRe.MatchString(v.Error()) {
				return false, v
			}
			if _, ok := v.Err.(x509.UnknownAuthorityError); ok {
				return false, v
			}
		}
		return true, nil
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, nil
	case resp.StatusCode >= 500:
		return true, nil
	}
	return false, nil
}

// Backoff doubles the initial delay per retry, capped at the maximum.
// A parseable Retry-After header on a 429 overrides the computed delay.
func (p Policy) Backoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}

	if attemptNum > 30 {
		return max
	}
	d := min << uint(attemptNum)
	if d <= 0 || d > max {
		return max
	}
	return d
}

// StatusError is a non-2xx response that survived the retry budget (or was
// classified non-retryable).
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

type ctxKey int

const attemptCtxKey ctxKey = 0

type attemptInfo struct {
	stage     errlog.Stage
	operation string
}

// Client wraps a retryablehttp client configured with the classified
// policy. One Client is shared by the source and target API clients.
type Client struct {
	rc     *retryablehttp.Client
	errors *errlog.Logger
}

func NewClient(p Policy, errors *errlog.Logger) *Client {
	c := &Client{errors: errors}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = p.MaxRetries
	rc.RetryWaitMin = p.InitialDelay
	rc.RetryWaitMax = p.MaxDelay
	rc.CheckRetry = p.CheckRetry
	rc.Backoff = p.Backoff
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt == 0 {
			return
		}
		info, _ := req.Context().Value(attemptCtxKey).(attemptInfo)
		c.errors.Info(errlog.CategoryAPIAccess, info.stage,
			fmt.Sprintf("retrying %s (attempt %d)", info.operation, attempt+1),
			map[string]interface{}{"url": req.URL.String(), "attempt": attempt + 1})
	}
	c.rc = rc
	return c
}

// Do executes one remote operation and returns the response body. The
// stage and operation name end up in every log entry the attempt chain
// produces. Non-2xx responses come back as *StatusError alongside the
// body, so callers can inspect error payloads.
func (c *Client) Do(ctx context.Context, method, rawurl string, headers map[string]string, body []byte, stage errlog.Stage, operation string) ([]byte, *http.Response, error) {
	ctx = context.WithValue(ctx, attemptCtxKey, attemptInfo{stage: stage, operation: operation})

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, rawurl, rdr)
	if err != nil {
		c.errors.Error(errlog.CategoryAPIAccess, stage,
			fmt.Sprintf("%s: request could not be built", operation),
			map[string]interface{}{"url": rawurl}, err)
		return nil, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.rc.Do(req)
	if err != nil {
		c.errors.Error(errlog.CategoryAPIAccess, stage,
			fmt.Sprintf("%s failed", operation),
			map[string]interface{}{"url": rawurl}, err)
		return nil, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		c.errors.Error(errlog.CategoryAPIAccess, stage,
			fmt.Sprintf("%s: reading response body failed", operation),
			map[string]interface{}{"url": rawurl, "status": resp.StatusCode}, err)
		return nil, resp, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Code: resp.StatusCode, URL: rawurl, Body: truncate(string(b), 512)}
		c.errors.Error(errlog.CategoryAPIAccess, stage,
			fmt.Sprintf("%s returned status %d", operation, resp.StatusCode),
			map[string]interface{}{"url": rawurl, "status": resp.StatusCode}, serr)
		return b, resp, serr
	}

	return b, resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
