// Package turnstile talks to Cloudflare's siteverify endpoint.
package turnstile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultVerifyURL is Cloudflare's production siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

const (
	defaultTimeout  = 5 * time.Second
	maxResponseBody = 64 << 10
)

var (
	// ErrTransport covers network failures, timeouts and server-side errors.
	ErrTransport = errors.New("turnstile verification request failed")
	// ErrMalformedResponse means a reply arrived but carried no usable verdict.
	ErrMalformedResponse = errors.New("turnstile verification response malformed")
)

// VerificationResult is Cloudflare's verdict for one token.
type VerificationResult struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	Action      string   `json:"action,omitempty"`
	CData       string   `json:"cdata,omitempty"`
}

// wire form; Success is a pointer so a missing field is detectable.
type siteverifyResponse struct {
	Success     *bool    `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	Action      string   `json:"action"`
	CData       string   `json:"cdata"`
}

// Client posts tokens to siteverify. It never retries and keeps no state
// between calls.
type Client struct {
	httpClient *http.Client
	verifyURL  string
	timeout    time.Duration
	tracer     trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func WithVerifyURL(u string) Option {
	return func(cl *Client) {
		if u != "" {
			cl.verifyURL = u
		}
	}
}

// WithTimeout bounds each request. It applies on top of any caller deadline.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(cl *Client) {
		if t != nil {
			cl.tracer = t
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		verifyURL:  DefaultVerifyURL,
		timeout:    defaultTimeout,
		tracer:     otel.Tracer("signupgate/turnstile"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify submits token for validation. remoteIP is sent only when non-empty.
//
// A 4xx reply that still parses with an explicit success flag is returned as a
// semantic result. Anything else outside 2xx is ErrTransport, and a body
// without a success flag is ErrMalformedResponse.
func (c *Client) Verify(ctx context.Context, token, secret, remoteIP string) (*VerificationResult, error) {
	ctx, span := c.tracer.Start(ctx, "turnstile.Verify", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	result, err := c.verify(ctx, token, secret, remoteIP)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification request failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("turnstile.success", result.Success),
		attribute.StringSlice("turnstile.error_codes", result.ErrorCodes),
	)
	return result, nil
}

func (c *Client) verify(ctx context.Context, token, secret, remoteIP string) (*VerificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the URL, never the form body.
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}

	var wire siteverifyResponse
	if err := json.Unmarshal(body, &wire); err != nil || wire.Success == nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
		}
		return nil, ErrMalformedResponse
	}
	if resp.StatusCode >= http.StatusMultipleChoices && *wire.Success {
		return nil, fmt.Errorf("%w: success reported with status %d", ErrMalformedResponse, resp.StatusCode)
	}

	return &VerificationResult{
		Success:     *wire.Success,
		ErrorCodes:  wire.ErrorCodes,
		ChallengeTS: wire.ChallengeTS,
		Hostname:    wire.Hostname,
		Action:      wire.Action,
		CData:       wire.CData,
	}, nil
}
