package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// HTTPSource fetches transaction history from the payment aggregator's
// REST API.
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSource creates an HTTP transaction source.
func NewHTTPSource(cfg domain.SourceConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchTransactions calls GET {base}/merchants/{id}/transactions with a
// from/to window. Non-2xx responses are errors; the retry wrapper
// decides what to do with them.
func (s *HTTPSource) FetchTransactions(ctx context.Context, merchantID string, from, to time.Time) ([]*domain.Transaction, error) {
	endpoint := fmt.Sprintf("%s/merchants/%s/transactions", s.baseURL, url.PathEscape(merchantID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction request: %w", err)
	}
	q := req.URL.Query()
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transaction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("transaction source returned status %d", resp.StatusCode)
	}

	var payload struct {
		Transactions []*domain.Transaction `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode transaction response: %w", err)
	}
	if payload.Transactions == nil {
		payload.Transactions = []*domain.Transaction{}
	}
	return payload.Transactions, nil
}
