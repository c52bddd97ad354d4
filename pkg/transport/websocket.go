// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConn carries a serial link tunnelled through a WebSocket bridge.
// Each binary message holds raw link bytes; other message types are ignored.
//
// Messages are received on a background goroutine so a framed read can give
// up without tearing down the connection.
type WebSocketConn struct {
	conn      *websocket.Conn
	msgs      chan []byte
	done      chan struct{}
	err       error
	buf       []byte
	slice     time.Duration
	closeOnce sync.Once
}

func newWebSocketConn(conn *websocket.Conn, slice time.Duration) *WebSocketConn {
	w := &WebSocketConn{
		conn:  conn,
		msgs:  make(chan []byte, 16),
		done:  make(chan struct{}),
		slice: slice,
	}
	go w.readLoop()
	return w
}

func (w *WebSocketConn) readLoop() {
	defer close(w.msgs)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.err = err
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case w.msgs <- data:
		case <-w.done:
			return
		}
	}
}

// Read returns (0, nil) when no message arrives within the read slice
func (w *WebSocketConn) Read(p []byte) (int, error) {
	if len(w.buf) == 0 {
		timer := time.NewTimer(w.slice)
		defer timer.Stop()

		select {
		case data, ok := <-w.msgs:
			if !ok {
				if w.err != nil {
					return 0, fmt.Errorf("%w: %v", ErrClosed, w.err)
				}
				return 0, ErrClosed
			}
			w.buf = data
		case <-timer.C:
			return 0, nil
		}
	}

	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

func (w *WebSocketConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ResetInputBuffer drops any received but unread messages
func (w *WebSocketConn) ResetInputBuffer() error {
	w.buf = nil
	for {
		select {
		case _, ok := <-w.msgs:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

func (w *WebSocketConn) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return w.conn.Close()
}

// OpenWebSocket dials a serial-over-WebSocket bridge with optional HTTP Basic
// auth
func OpenWebSocket(wsURL, username, password string, skipVerify bool, timeout time.Duration) (*StreamPort, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	slice := readSlice
	if timeout > 0 && timeout < slice {
		slice = timeout
	}
	return NewStreamPort(newWebSocketConn(conn, slice), timeout), nil
}
