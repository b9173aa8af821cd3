// Package fxrates refreshes the exchange_rates table from an external USD quote.
package fxrates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultURL     = "https://open.er-api.com/v6/latest/USD"
	DefaultTimeout = 10 * time.Second
	// EnvURL overrides the configured endpoint.
	EnvURL = "FX_API_URL"

	maxBody = 1 << 20
)

// Quote maps currency code to units per 1 USD.
type Quote map[string]decimal.Decimal

type Provider interface {
	Fetch(ctx context.Context) (Quote, error)
}

// TransientError marks a failed fetch. The syncer treats every TransientError
// the same way: log it and leave the table alone until the next tick.
type TransientError struct {
	Reason string
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return "fx fetch: " + e.Reason + ": " + e.Err.Error()
	}
	return "fx fetch: " + e.Reason
}

func (e *TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// HTTPProvider does GET <URL> and decodes {"rates": {"CUR": rate}}.
type HTTPProvider struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

func NewHTTPProvider(url string, timeout time.Duration) *HTTPProvider {
	if strings.TrimSpace(url) == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProvider{URL: url, Timeout: timeout, Client: &http.Client{}}
}

type quoteBody struct {
	Rates map[string]json.Number `json:"rates"`
}

func (p *HTTPProvider) Fetch(ctx context.Context) (Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, &TransientError{Reason: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransientError{Reason: "transport", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, &TransientError{Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBody))
	dec.UseNumber()
	var body quoteBody
	if err := dec.Decode(&body); err != nil {
		return nil, &TransientError{Reason: "decode", Err: err}
	}
	if body.Rates == nil {
		return nil, &TransientError{Reason: "response has no rates object"}
	}

	q := make(Quote, len(body.Rates))
	for code, raw := range body.Rates {
		d, err := decimal.NewFromString(raw.String())
		if err != nil {
			continue
		}
		q[strings.ToUpper(code)] = d
	}
	return q, nil
}
