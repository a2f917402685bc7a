package push

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harrylevesque/firenet/internal/metrics"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
	dialTimeout  = 10 * time.Second
)

// ErrNoSession is returned by a dial attempt when no token is stored.
var ErrNoSession = errors.New("push: no session token")

// ListenerConfig wires a Listener.
type ListenerConfig struct {
	Domains        []string
	Path           string
	Token          func() string
	Handler        *Handler
	ReconnectDelay time.Duration
	RootCAs        *x509.CertPool
	Logger         *slog.Logger
}

// Listener keeps a websocket open to the first reachable domain and feeds
// every received payload to the handler.
type Listener struct {
	cfg    ListenerConfig
	dialer *websocket.Dialer
}

// NewListener builds a Listener. Run starts it.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Path == "" {
		cfg.Path = "/api/push"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	d := &websocket.Dialer{HandshakeTimeout: dialTimeout, Proxy: http.ProxyFromEnvironment}
	if cfg.RootCAs != nil {
		d.TLSClientConfig = &tls.Config{RootCAs: cfg.RootCAs, MinVersion: tls.VersionTLS12}
	}
	return &Listener{cfg: cfg, dialer: d}
}

// wsURL maps an http(s) base domain onto its ws(s) push endpoint.
func wsURL(domain, path string) string {
	domain = strings.TrimRight(domain, "/")
	switch {
	case strings.HasPrefix(domain, "https://"):
		domain = "wss://" + strings.TrimPrefix(domain, "https://")
	case strings.HasPrefix(domain, "http://"):
		domain = "ws://" + strings.TrimPrefix(domain, "http://")
	}
	return domain + path
}

// Run connects, reads until the connection drops, and reconnects after
// ReconnectDelay until ctx ends.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.connectOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, ErrNoSession) {
			l.cfg.Logger.Warn("push connection ended", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.cfg.ReconnectDelay):
		}
	}
}

func (l *Listener) connectOnce(ctx context.Context) error {
	token := ""
	if l.cfg.Token != nil {
		token = l.cfg.Token()
	}
	if token == "" {
		return ErrNoSession
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	var lastErr error
	for _, domain := range l.cfg.Domains {
		url := wsURL(domain, l.cfg.Path)
		conn, resp, err := l.dialer.DialContext(ctx, url, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			l.cfg.Logger.Debug("push dial failed", "domain", domain, "err", err)
			lastErr = err
			continue
		}
		l.cfg.Logger.Info("push connected", "domain", domain)
		metrics.PushConnected.Set(1)
		err = l.serve(ctx, conn)
		metrics.PushConnected.Set(0)
		return err
	}
	if lastErr == nil {
		return errors.New("push: no domains configured")
	}
	return fmt.Errorf("push dial: %w", lastErr)
}

func (l *Listener) serve(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				conn.Close()
				return
			case <-done:
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		data, err := DecodePayload(raw)
		if err != nil {
			l.cfg.Logger.Warn("push payload invalid", "err", err)
			continue
		}
		res := l.cfg.Handler.Handle(data)
		l.cfg.Logger.Debug("push payload handled", "result", res.String())
	}
}

// DecodePayload accepts either a flat JSON object or one wrapped as
// {"data": {...}}. Non-string values are kept as their JSON text.
func DecodePayload(raw []byte) (map[string]string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, err
	}
	if inner, ok := top["data"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(inner, &nested); err == nil {
			top = nested
		}
	}
	out := make(map[string]string, len(top))
	for k, v := range top {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		if string(v) == "null" {
			continue
		}
		out[k] = string(v)
	}
	return out, nil
}
