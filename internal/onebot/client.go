// Package onebot is a websocket client for a OneBot v11 endpoint. It issues
// action calls correlated by echo ids over one long-lived connection and
// adapts the group history API for the sync service.
package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lorebook/lorebook/internal/chathistory"
	"github.com/lorebook/lorebook/internal/kberr"
)

// Config configures the websocket connection.
type Config struct {
	// URL is the forward websocket endpoint, e.g. "ws://127.0.0.1:3001".
	URL         string
	AccessToken string
	// CallTimeout bounds one action round trip.
	CallTimeout   time.Duration
	ReconnectWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	return c
}

// Client talks to one OneBot endpoint. Run owns the connection; CallAction
// may be used from any goroutine once Run is up.
type Client struct {
	cfg    Config
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan actionResponse
}

func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		pending: make(map[string]chan actionResponse),
	}
}

type actionRequest struct {
	Action string `json:"action"`
	Params any    `json:"params,omitempty"`
	Echo   string `json:"echo"`
}

type actionResponse struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Echo    string          `json:"echo"`
	Message string          `json:"message"`
}

// Run dials the endpoint and keeps the session alive until the context
// ends, reconnecting after failures.
func (c *Client) Run(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.URL) == "" {
		c.logger.Info("onebot client disabled, url missing")
		<-ctx.Done()
		return nil
	}
	for {
		if ctx.Err() != nil {
			c.logger.Info("onebot client stopped")
			return nil
		}
		if err := c.runSession(ctx); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("onebot client stopped")
				return nil
			}
			c.logger.Error("onebot session ended, reconnecting", "error", err)
		}
		select {
		case <-ctx.Done():
			c.logger.Info("onebot client stopped")
			return nil
		case <-time.After(c.cfg.ReconnectWait):
		}
	}
}

func (c *Client) runSession(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial onebot endpoint: %w", err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer c.dropSession(conn)

	c.logger.Info("onebot session established", "url", c.cfg.URL)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read onebot message: %w", err)
		}
		var response actionResponse
		if err := json.Unmarshal(data, &response); err != nil {
			c.logger.Error("decode onebot frame failed", "error", err)
			continue
		}
		if response.Echo == "" {
			// Event push, not an action response.
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[response.Echo]
		if ok {
			delete(c.pending, response.Echo)
		}
		c.mu.Unlock()
		if ok {
			ch <- response
		}
	}
}

// dropSession clears the connection and fails every in-flight call so no
// caller blocks on a response that can never arrive.
func (c *Client) dropSession(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	for echo, ch := range c.pending {
		delete(c.pending, echo)
		close(ch)
	}
}

// CallAction issues one action and waits for its correlated response.
func (c *Client) CallAction(ctx context.Context, action string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	var echo string
	var ch chan actionResponse
	if conn != nil {
		echo = uuid.NewString()
		ch = make(chan actionResponse, 1)
		c.pending[echo] = ch
	}
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("%w: onebot endpoint not connected", kberr.ErrClient)
	}

	request := actionRequest{Action: action, Params: params, Echo: echo}
	c.writeMu.Lock()
	err := conn.WriteJSON(request)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(echo)
		return nil, fmt.Errorf("%w: send %s: %v", kberr.ErrClient, action, err)
	}

	timer := time.NewTimer(c.cfg.CallTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		c.forget(echo)
		return nil, fmt.Errorf("%w: %s: %v", kberr.ErrClient, action, ctx.Err())
	case <-timer.C:
		c.forget(echo)
		return nil, fmt.Errorf("%w: %s timed out after %s", kberr.ErrClient, action, c.cfg.CallTimeout)
	case response, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%w: connection lost during %s", kberr.ErrClient, action)
		}
		if response.Status == "failed" || (response.RetCode != 0 && response.Status != "async") {
			return nil, fmt.Errorf("%w: %s failed: retcode %d %s",
				kberr.ErrClient, action, response.RetCode, response.Message)
		}
		return response.Data, nil
	}
}

// WaitConnected blocks until a session is up or the context ends. One-shot
// callers use it between starting Run and issuing their first action.
func (c *Client) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		connected := c.conn != nil
		c.mu.Unlock()
		if connected {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: onebot endpoint not connected: %v", kberr.ErrClient, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) forget(echo string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, echo)
}

// SelfID returns the bot account's own user id.
func (c *Client) SelfID(ctx context.Context) (int64, error) {
	data, err := c.CallAction(ctx, "get_login_info", nil)
	if err != nil {
		return 0, err
	}
	var payload struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("%w: decode login info: %v", kberr.ErrParsing, err)
	}
	return payload.UserID, nil
}

// GroupMessageHistory pages a group's history backwards from cursor; cursor
// 0 asks for the most recent page.
func (c *Client) GroupMessageHistory(ctx context.Context, groupID, cursor int64) ([]chathistory.Message, error) {
	params := map[string]any{
		"group_id":     groupID,
		"message_seq":  cursor,
		"reverseOrder": true,
	}
	data, err := c.CallAction(ctx, "get_group_msg_history", params)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Messages []chathistory.Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode group history: %v", kberr.ErrParsing, err)
	}
	return payload.Messages, nil
}
