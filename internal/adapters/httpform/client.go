// Package httpform contains the HTTP implementation of the form client:
// it fetches the registration page for a token, submits the filled form,
// and returns the raw response body for classification.
package httpform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/example/batchreg/internal/ports/secondary"
)

// DefaultUserAgent mirrors a current desktop browser; the remote rejects
// obviously non-browser agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// maxBodyBytes caps how much of a response is read. Larger pages carry no
// classification signal.
const maxBodyBytes = 1 << 20

var (
	tokenRegex     = regexp.MustCompile(`(?i)name="_token"\s+value="([^"]+)"`)
	challengeRegex = regexp.MustCompile(`(?is)<[^>]*captcha[^>]*>\s*([A-Za-z0-9 ]{3,12})\s*<`)
)

// Client implements secondary.FormClient and session.TokenFetcher
// against the external registration form.
type Client struct {
	endpoint  string
	userAgent string
	transport http.RoundTripper
}

// New creates a form client for the given endpoint. transport may be nil
// for http.DefaultTransport; it is shared across all sessions while the
// cookie jar stays per-session.
func New(endpoint, userAgent string, transport http.RoundTripper) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{endpoint: endpoint, userAgent: userAgent, transport: transport}
}

// FetchToken loads the registration page under the given cookie jar and
// extracts the anti-forgery token and, when present, the challenge text.
func (c *Client) FetchToken(ctx context.Context, jar http.CookieJar) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to build page request: %w", err)
	}
	c.stampHeaders(req, false)

	body, _, err := c.do(jar, req)
	if err != nil {
		return "", "", err
	}

	m := tokenRegex.FindStringSubmatch(body)
	if len(m) < 2 {
		return "", "", fmt.Errorf("anti-forgery token not found on page")
	}

	challenge := ""
	if cm := challengeRegex.FindStringSubmatch(body); len(cm) > 1 {
		challenge = normalizeChallenge(cm[1])
	}
	return m[1], challenge, nil
}

// Submit posts the filled form under the submission's session context.
func (c *Client) Submit(ctx context.Context, sub secondary.FormSubmission) (*secondary.SubmitResult, error) {
	values := url.Values{
		"name":         {sub.Record.Name},
		"ktp":          {sub.Record.ID},
		"phone_number": {sub.Record.Phone},
		"check":        {"1"},
		"check_2":      {"1"},
		"_token":       {sub.Session.Token},
	}
	if sub.Session.ChallengeText != "" {
		values.Set("captcha", sub.Session.ChallengeText)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build submit request: %w", err)
	}
	c.stampHeaders(req, true)
	if sub.Session.UserAgent != "" {
		req.Header.Set("User-Agent", sub.Session.UserAgent)
	}

	body, resp, err := c.do(sub.Session.Jar, req)
	if err != nil {
		return nil, err
	}
	return &secondary.SubmitResult{
		Body:       body,
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}, nil
}

func (c *Client) do(jar http.CookieJar, req *http.Request) (string, *http.Response, error) {
	client := &http.Client{Jar: jar, Transport: c.transport}
	resp, err := client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request to %s failed: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return string(body), resp, nil
}

func (c *Client) stampHeaders(req *http.Request, post bool) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if post {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Referer", c.endpoint)
		req.Header.Set("Sec-Fetch-Dest", "document")
		req.Header.Set("Sec-Fetch-Mode", "navigate")
		req.Header.Set("Sec-Fetch-Site", "same-origin")
	}
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(v); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

// normalizeChallenge strips spacing and punctuation the page injects
// between challenge characters.
func normalizeChallenge(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
}
