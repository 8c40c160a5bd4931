package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/Reddy-45/siem/internal/domain"
)

var ErrNotBlocked = errors.New("address is not blocked")

// Snapshot is one poll of the service's query surface.
type Snapshot struct {
	Events    []domain.Event
	Blocked   []domain.BlockEntry
	Reports   []*domain.IncidentReport
	FetchedAt time.Time
}

// Client reads a running siem service through its HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Snapshot fetches events, blocks and reports. The three reads are not
// atomic with respect to each other.
func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	if err := c.getJSON(ctx, "/api/logs", &s.Events); err != nil {
		return Snapshot{}, err
	}
	if err := c.getJSON(ctx, "/api/blocked", &s.Blocked); err != nil {
		return Snapshot{}, err
	}
	if err := c.getJSON(ctx, "/api/reports", &s.Reports); err != nil {
		return Snapshot{}, err
	}
	s.FetchedAt = time.Now()
	return s, nil
}

// Unblock lifts the block on addr. Returns ErrNotBlocked when the service
// has no block for it.
func (c *Client) Unblock(ctx context.Context, addr netip.Addr) error {
	endpoint := c.baseURL + "/api/blocked/" + url.PathEscape(addr.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("unblock %s: %w", addr, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotBlocked
	default:
		return fmt.Errorf("unblock %s: unexpected status %d", addr, resp.StatusCode)
	}
}

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}
