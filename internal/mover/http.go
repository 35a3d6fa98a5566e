package mover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// HTTPMover talks to a REST mailbox-management service:
//
//	GET  /api/v1/ping
//	GET  /api/v1/mailboxes/{identity}  -> MailboxInfo (404 = missing)
//	POST /api/v1/moves                 -> MoveResult
type HTTPMover struct {
	client *Client
}

// NewHTTPMover creates an HTTPMover for conn.
func NewHTTPMover(conn *Connection) (*HTTPMover, error) {
	if conn.Host == "" {
		return nil, fmt.Errorf("http mover: host is required")
	}
	c := *conn
	c.applyDefaults()
	return &HTTPMover{client: NewClient(&c)}, nil
}

func (m *HTTPMover) Ping(ctx context.Context) error {
	_, _, err := m.client.Get(ctx, "/api/v1/ping", nil)
	return err
}

func (m *HTTPMover) Lookup(ctx context.Context, identity string) (MailboxInfo, error) {
	body, status, err := m.client.Get(ctx, "/api/v1/mailboxes/"+url.PathEscape(identity), nil)
	if status == http.StatusNotFound {
		return MailboxInfo{Exists: false}, nil
	}
	if err != nil {
		return MailboxInfo{}, err
	}
	var raw struct {
		Exists *bool   `json:"exists"`
		SizeMB float64 `json:"size_mb"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return MailboxInfo{}, fmt.Errorf("parsing mailbox %s: %w", identity, err)
	}
	// A 200 without an explicit flag means the mailbox is there.
	info := MailboxInfo{Exists: true, SizeMB: raw.SizeMB}
	if raw.Exists != nil {
		info.Exists = *raw.Exists
	}
	return info, nil
}

func (m *HTTPMover) Move(ctx context.Context, source, target string) (MoveResult, error) {
	body, _, err := m.client.Post(ctx, "/api/v1/moves", map[string]string{
		"source": source,
		"target": target,
	})
	if err != nil {
		return MoveResult{}, err
	}
	var res MoveResult
	if err := json.Unmarshal(body, &res); err != nil {
		return MoveResult{}, fmt.Errorf("parsing move result: %w", err)
	}
	return res, nil
}
