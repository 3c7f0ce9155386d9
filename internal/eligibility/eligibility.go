// Package eligibility asks an external service whether an identity may spin.
//
// Every failure (network, timeout, non-2xx status, malformed body) is
// reported as "not allowed" with a readable message.
package eligibility

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ichi0g0y/prize-wheel/internal/shared/logger"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 5 * time.Second

	maxResponseBytes = 64 << 10

	MessageUnavailable = "eligibility service unavailable, please try again later"
)

// Decision is the answer of an eligibility check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
}

// Checker decides whether identity may start a spin.
type Checker interface {
	Check(ctx context.Context, identity string) Decision
}

// AllowAll is used when no remote endpoint is configured.
type AllowAll struct{}

func (AllowAll) Check(context.Context, string) Decision {
	return Decision{Allowed: true}
}

// HTTPChecker posts {"identity": ...} to an endpoint and expects
// {"allowed": bool, "message": string} back.
type HTTPChecker struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPChecker creates a checker. timeout <= 0 selects DefaultTimeout.
func NewHTTPChecker(endpoint, token string, timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPChecker{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

type checkRequest struct {
	Identity string `json:"identity"`
}

type checkResponse struct {
	Allowed *bool  `json:"allowed"`
	Message string `json:"message"`
}

func denied(reason string, err error, identity string) Decision {
	logger.Warn("Eligibility check failed closed",
		zap.String("reason", reason),
		zap.String("identity", identity),
		zap.Error(err))
	return Decision{Allowed: false, Message: MessageUnavailable}
}

func (c *HTTPChecker) Check(ctx context.Context, identity string) Decision {
	body, err := json.Marshal(checkRequest{Identity: identity})
	if err != nil {
		return denied("encode", err, identity)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return denied("request", err, identity)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return denied("network", err, identity)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return denied("read", err, identity)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return denied("status", fmt.Errorf("eligibility api error: status %d", resp.StatusCode), identity)
	}

	var parsed checkResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return denied("decode", err, identity)
	}
	if parsed.Allowed == nil {
		return denied("decode", fmt.Errorf("missing allowed field"), identity)
	}

	decision := Decision{Allowed: *parsed.Allowed, Message: strings.TrimSpace(parsed.Message)}
	if !decision.Allowed && decision.Message == "" {
		decision.Message = "not eligible to spin"
	}
	logger.Debug("Eligibility checked",
		zap.String("identity", identity),
		zap.Bool("allowed", decision.Allowed))
	return decision
}
