package receiver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Watcher subscribes to a receiver's /errorHub and decodes pushed errors.
type Watcher struct {
	url    string
	dialer *websocket.Dialer
	mu     sync.Mutex
	conn   *websocket.Conn
}

// NewWatcher derives the websocket URL from the receiver's HTTP base URL.
func NewWatcher(baseURL string) *Watcher {
	u := strings.TrimRight(baseURL, "/") + "/errorHub"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return &Watcher{
		url: u,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

// URL returns the websocket endpoint.
func (w *Watcher) URL() string {
	return w.url
}

// Connect dials the hub.
func (w *Watcher) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return fmt.Errorf("already connected")
	}

	conn, resp, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	w.conn = conn
	return nil
}

// Next blocks until the hub pushes an error or the connection fails.
func (w *Watcher) Next(ctx context.Context) (ErrorRecord, error) {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return ErrorRecord{}, fmt.Errorf("not connected")
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return ErrorRecord{}, fmt.Errorf("read message: %w", err)
	}

	var rec ErrorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ErrorRecord{}, fmt.Errorf("decode error record: %w", err)
	}
	return rec, nil
}

// Close sends a close frame and releases the connection.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return nil
	}

	err := w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second),
	)

	closeErr := w.conn.Close()
	w.conn = nil

	if err != nil {
		return err
	}
	return closeErr
}
