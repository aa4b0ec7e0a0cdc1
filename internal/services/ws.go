package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultPingInterval   = 30 * time.Second
	writeWait             = 10 * time.Second
)

// FrameHandler consumes raw feed frames, one at a time.
type FrameHandler interface {
	HandleFrame(raw []byte) error
}

// --- WebSocket Feed Logic ---

// Feed keeps a websocket connection to the order backend open and hands every
// text frame to the handler. It reconnects after a fixed delay until its
// context ends.
type Feed struct {
	url            string
	apiKey         string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	handler        FrameHandler
	dialer         *websocket.Dialer
	logger         *slog.Logger
}

func NewFeed(cfg model.FeedConfig, handler FrameHandler, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}
	return &Feed{
		url:            cfg.URL,
		apiKey:         cfg.APIKey,
		reconnectDelay: delay,
		pingInterval:   ping,
		handler:        handler,
		dialer:         websocket.DefaultDialer,
		logger:         logger.With("component", "feed"),
	}
}

// Run blocks until ctx ends and returns its error.
func (f *Feed) Run(ctx context.Context) error {
	if f.url == "" {
		return errors.New("feed url is not configured")
	}
	header := http.Header{}
	if f.apiKey != "" {
		header.Add("X-Api-Key", f.apiKey)
	}

	f.logger.Info("connecting to order feed", "url", f.url)
	for {
		conn, _, err := f.dialer.DialContext(ctx, f.url, header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("connection failed, retrying", "error", err, "delay", f.reconnectDelay)
		} else {
			f.logger.Info("connected")
			err = f.handleConnection(ctx, conn)
			conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("disconnected, reconnecting", "error", err, "delay", f.reconnectDelay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *Feed) handleConnection(ctx context.Context, conn *websocket.Conn) error {
	readTimeout := 2 * f.pingInterval
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go f.keepAlive(ctx, conn, done)

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		// Bad frames are logged by the handler and never end the connection.
		_ = f.handler.HandleFrame(raw)
	}
}

// keepAlive pings the server and closes the connection when ctx ends so the
// blocked read returns.
func (f *Feed) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				f.logger.Warn("ping failed", "error", err)
				conn.Close()
				return
			}
		}
	}
}
