// Package authority talks to the package verification authority.
package authority

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/boostsecurityio/integrity/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/kaptinlin/jsonschema"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	verifyPath       = "/v1/verify"
	maxResponseBytes = 32 * 1024 * 1024
	maxErrorBytes    = 4 * 1024
)

//go:embed schema/verify_response.schema.json
var verifyResponseSchema []byte

type Client struct {
	endpoint   string
	httpClient *http.Client
	userAgent  string
	maxRetries int
	schema     *jsonschema.Schema

	// first retry delay, the exponential policy grows it from there
	initialInterval time.Duration
}

func NewClient(ctx context.Context, config models.ConfigAuthority, userAgent string) (*Client, error) {
	base, err := url.Parse(config.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid authority url %q", config.URL)
	}
	if base.Scheme != "https" && base.Scheme != "http" {
		return nil, fmt.Errorf("unsupported authority url scheme %q", base.Scheme)
	}

	schema, err := compileResponseSchema()
	if err != nil {
		return nil, err
	}

	httpClient := NewSecureHTTPClient()
	if config.Token != "" {
		if base.Scheme != "https" {
			log.Warn().Str("url", config.URL).Msg("sending the authority token over plain http")
		}
		src := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: config.Token},
		)
		httpClient = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, httpClient), src)
	}

	maxRetries := config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	if userAgent == "" {
		userAgent = "integrity"
	}

	return &Client{
		endpoint:        strings.TrimRight(base.String(), "/") + verifyPath,
		httpClient:      httpClient,
		userAgent:       userAgent,
		maxRetries:      maxRetries,
		schema:          schema,
		initialInterval: 500 * time.Millisecond,
	}, nil
}

func compileResponseSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(verifyResponseSchema)
	if err != nil {
		return nil, fmt.Errorf("compile verify response schema: %w", err)
	}
	return schema, nil
}

// SubmitBatch posts every request in one exchange. Network errors, 429 and
// 5xx answers are retried; the caller's context bounds the whole exchange.
func (c *Client) SubmitBatch(ctx context.Context, requests []models.VerificationRequest) ([]models.VerificationResponse, error) {
	requestID := uuid.NewString()
	body, err := json.Marshal(newVerifyRequest(requestID, requests))
	if err != nil {
		return nil, models.NewFailure(models.ProtocolFailure, fmt.Errorf("failed to encode verification request: %w", err))
	}

	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = c.initialInterval
	exponential.MaxElapsedTime = 0
	policy := &retryAfterBackOff{BackOff: backoff.WithMaxRetries(exponential, uint64(c.maxRetries))}

	var raw []byte
	attempt := 0
	operation := func() error {
		attempt++
		data, err := c.post(ctx, requestID, body)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				if !statusErr.Retryable() {
					return backoff.Permanent(err)
				}
				policy.retryAfter = parseRetryAfter(statusErr.RetryAfter, time.Now())
			}
			return err
		}
		raw = data
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Str("request_id", requestID).Msgf("verification request failed, retrying in %s", wait)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, models.NewFailure(models.TransportFailure, fmt.Errorf("verification request %s failed: %w", requestID, err))
	}

	return c.decode(raw)
}

func (c *Client) post(ctx context.Context, requestID string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build verification request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Message:    strings.TrimSpace(string(message)),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read verification response: %w", err)
	}
	if len(data) > maxResponseBytes {
		return nil, backoff.Permanent(&models.Failure{
			Kind: models.ProtocolFailure,
			Err:  fmt.Errorf("verification response exceeds %d bytes", maxResponseBytes),
		})
	}
	return data, nil
}

func (c *Client) decode(raw []byte) ([]models.VerificationResponse, error) {
	var response verifyResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, &models.Failure{
			Kind: models.ProtocolFailure,
			Err:  fmt.Errorf("failed to decode verification response: %w", err),
		}
	}

	result := c.schema.ValidateJSON(raw)
	if !result.IsValid() {
		return nil, &models.Failure{
			Kind: models.ProtocolFailure,
			Err:  fmt.Errorf("verification response schema validation failed: %v", result.Errors),
		}
	}

	return response.Packages, nil
}
