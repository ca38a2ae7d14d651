package client

import (
	"context"
	"fmt"
	"net/url"

	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

// Status returns the watcher's current poll loop status.
func (c *Client) Status(ctx context.Context) (*domain.StatusReport, error) {
	var st domain.StatusReport
	if err := c.get(ctx, "/api/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Events returns up to limit recently notified events, newest first. A
// limit of zero uses the server default.
func (c *Client) Events(ctx context.Context, limit int) ([]domain.EventReport, error) {
	path := "/api/v1/events"
	if limit > 0 {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(limit))
		path += "?" + q.Encode()
	}
	var events []domain.EventReport
	if err := c.get(ctx, path, &events); err != nil {
		return nil, err
	}
	return events, nil
}
