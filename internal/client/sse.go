package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/corvex/corvex/internal/logging"
	"github.com/corvex/corvex/internal/protocol"
)

// Subscribe connects to the change feed and returns a channel of events.
// The connection is re-established with backoff until ctx is cancelled,
// at which point the channel is closed.
func (c *Client) Subscribe(ctx context.Context) <-chan protocol.ChangeEvent {
	events := make(chan protocol.ChangeEvent, 100)
	go c.subscribeLoop(ctx, events)
	return events
}

func (c *Client) subscribeLoop(ctx context.Context, events chan<- protocol.ChangeEvent) {
	defer close(events)

	reconnectDelay := c.reconnectMin

	for {
		err := c.stream(ctx, events)
		if ctx.Err() != nil {
			return
		}

		logging.Warn("change feed disconnected",
			zap.Error(err),
			zap.Duration("reconnect_in", reconnectDelay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}

		reconnectDelay *= 2
		if reconnectDelay > c.reconnectMax {
			reconnectDelay = c.reconnectMax
		}
	}
}

func (c *Client) stream(ctx context.Context, events chan<- protocol.ChangeEvent) error {
	url := c.baseURL + "/api/v1/events"

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.applyAuth(req)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	logging.Debug("change feed connected", zap.String("url", url))

	scanner := bufio.NewScanner(resp.Body)
	var data string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data != "" {
				var event protocol.ChangeEvent
				if err := json.Unmarshal([]byte(data), &event); err != nil {
					logging.Debug("malformed change event", zap.String("data", data), zap.Error(err))
				} else {
					select {
					case events <- event:
					case <-ctx.Done():
						return nil
					}
				}
			}
			data = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return fmt.Errorf("connection closed")
}
