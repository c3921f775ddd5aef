// Package client talks to a running transporter API over HTTP and WebSocket.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"journaltransporter/internal/api"
	"journaltransporter/internal/ingest"
	"journaltransporter/pkg/models"
)

const DefaultBaseURL = "http://localhost:8080"

// APIError is a non-2xx response. Body holds the decoded JSON error, if any.
type APIError struct {
	Method string
	URL    string
	Status int
	Body   map[string]any
	Raw    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, e.Raw)
}

type Client struct {
	BaseURL  string
	Email    string
	Password string
	HTTP     *http.Client
}

func New(baseURL, email, password string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Email:    email,
		Password: password,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// PushJournal posts a journal payload. created is true when the server had no journal at that path.
func (c *Client) PushJournal(ctx context.Context, p *ingest.JournalPayload) (j *models.Journal, created bool, err error) {
	j = &models.Journal{}
	status, err := c.doJSON(ctx, http.MethodPost, "/journals/", p, j)
	if err != nil {
		return nil, false, err
	}
	return j, status == http.StatusCreated, nil
}

func (c *Client) PushAccount(ctx context.Context, p *ingest.AccountPayload) (*models.Account, error) {
	var acc models.Account
	if _, err := c.doJSON(ctx, http.MethodPost, "/users/", p, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (c *Client) ExportJournal(ctx context.Context, journalID int64) (*ingest.JournalPayload, error) {
	var out ingest.JournalPayload
	if _, err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/journals/%d/export/", journalID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events streams raw event messages to fn until ctx is cancelled, the connection
// drops or fn returns an error.
func (c *Client) Events(ctx context.Context, fn func([]byte) error) error {
	u, err := url.Parse(c.BaseURL + api.Prefix + "/events/")
	if err != nil {
		return fmt.Errorf("events url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	if c.Email != "" {
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.Email+":"+c.Password)))
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) (int, error) {
	endpoint := c.BaseURL + api.Prefix + path

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Email != "" {
		req.SetBasicAuth(c.Email, c.Password)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Method: method, URL: endpoint, Status: resp.StatusCode, Raw: strings.TrimSpace(string(data))}
		_ = json.Unmarshal(data, &apiErr.Body)
		return resp.StatusCode, apiErr
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
