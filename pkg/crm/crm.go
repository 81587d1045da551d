// Package crm mirrors lead-cadence status changes into the connected CRM.
package crm

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

	"github.com/dukex/cadence/pkg/protocol"
)

const defaultTimeoutSeconds = 10

var (
	// ErrCRMURLInvalid is returned when the mirror endpoint cannot be parsed.
	ErrCRMURLInvalid = errors.New("invalid CRM url")
	// ErrCRMRejected is returned when the CRM answers with a non 2xx status.
	ErrCRMRejected = errors.New("CRM rejected mirror request")
)

// HTTPAdapter posts status changes to
// {base}/leads/{lead_id}/cadences/{cadence_id}/status as JSON.
type HTTPAdapter struct {
	base   *url.URL
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPAdapter creates an adapter for rawURL. token, when set, is sent as a
// bearer token.
func NewHTTPAdapter(rawURL, token string, logger *slog.Logger) (*HTTPAdapter, error) {
	base, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrCRMURLInvalid, rawURL)
	}

	return &HTTPAdapter{
		base:  base,
		token: token,
		client: &http.Client{
			Timeout: defaultTimeoutSeconds * time.Second,
		},
		logger: logger.With("module", "crm"),
	}, nil
}

func (a *HTTPAdapter) MirrorStatus(ctx context.Context, req protocol.MirrorRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode mirror request: %w", err)
	}

	endpoint := a.base.JoinPath("leads", req.LeadID, "cadences", req.CadenceID, "status")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build mirror request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	if a.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mirror request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("%w: status %d: %s", ErrCRMRejected, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	a.logger.DebugContext(ctx, "status mirrored", "lead_id", req.LeadID, "cadence_id", req.CadenceID, "status", req.Status)

	return nil
}

// NoopAdapter is used when no CRM is connected.
type NoopAdapter struct {
	logger *slog.Logger
}

func NewNoopAdapter(logger *slog.Logger) *NoopAdapter {
	return &NoopAdapter{logger: logger.With("module", "crm")}
}

func (a *NoopAdapter) MirrorStatus(ctx context.Context, req protocol.MirrorRequest) error {
	a.logger.DebugContext(ctx, "no CRM connected, skipping mirror", "lead_id", req.LeadID, "cadence_id", req.CadenceID)

	return nil
}

// New returns an HTTP adapter for rawURL, or a no-op adapter when it is empty.
func New(rawURL, token string, logger *slog.Logger) (protocol.CRMAdapter, error) {
	if rawURL == "" {
		return NewNoopAdapter(logger), nil
	}

	return NewHTTPAdapter(rawURL, token, logger)
}
