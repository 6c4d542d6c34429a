package httpform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/example/batchreg/internal/ports/secondary"
)

// FallbackClient implements secondary.FallbackChecker against an
// independent JSON status endpoint:
//
//	GET {endpoint}?nik={id}
//	  -> {"registered": true, "queue_number": "PB2025 A-104"}
//	  or {"status": {...}} wrapping the same shape.
type FallbackClient struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

// NewFallback creates a fallback checker. client may be nil for a default
// client; cookies are deliberately not carried, the channel must stay
// independent of the submission session.
func NewFallback(endpoint, userAgent string, client *http.Client) *FallbackClient {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if client == nil {
		client = &http.Client{}
	}
	return &FallbackClient{endpoint: endpoint, userAgent: userAgent, client: client}
}

type fallbackPayload struct {
	Registered  bool   `json:"registered"`
	QueueNumber string `json:"queue_number"`
}

type fallbackEnvelope struct {
	fallbackPayload
	Status *fallbackPayload `json:"status"`
}

// Check queries the status endpoint for one record identifier.
func (f *FallbackClient) Check(ctx context.Context, recordID string) (*secondary.FallbackStatus, error) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid fallback endpoint: %w", err)
	}
	q := u.Query()
	q.Set("nik", recordID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fallback request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, secondary.ErrFallbackUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, secondary.ErrFallbackUnavailable
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, secondary.ErrFallbackUnavailable
	}

	var envelope fallbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, secondary.ErrFallbackUnavailable
	}

	payload := envelope.fallbackPayload
	if envelope.Status != nil {
		payload = *envelope.Status
	}
	return &secondary.FallbackStatus{
		Registered:     payload.Registered,
		ConfirmationID: payload.QueueNumber,
	}, nil
}
