package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client is a thin HTTP client over the MCP tool surface, used by the
// wrapper supervisor to post chat, read backlog, and probe reachability.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a Client targeting baseURL (e.g. "http://127.0.0.1:8200").
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) call(ctx context.Context, tool ToolName, req, resp interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mcp/"+string(tool), bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Session-Token", c.token)
	reqID := uuid.NewString()
	httpReq.Header.Set("X-Request-Id", reqID)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mcp %s [%s]: %w", tool, reqID, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 300 {
		return fmt.Errorf("mcp %s [%s]: unexpected status %d", tool, reqID, httpResp.StatusCode)
	}
	if resp == nil {
		return nil
	}
	return json.NewDecoder(httpResp.Body).Decode(resp)
}

// Send posts a chat message as agent.
func (c *Client) Send(ctx context.Context, agent, channel, text string) error {
	return c.call(ctx, ToolChatSend, SendRequest{Agent: agent, Channel: channel, Text: text}, nil)
}

// Read returns messages new to agent's cursor.
func (c *Client) Read(ctx context.Context, agent, channel string) (ReadResponse, error) {
	var resp ReadResponse
	err := c.call(ctx, ToolChatRead, ReadRequest{Agent: agent, Channel: channel}, &resp)
	return resp, err
}

// Join marks agent present and posts a join message.
func (c *Client) Join(ctx context.Context, agent, sessionID string) error {
	return c.call(ctx, ToolChatJoin, JoinRequest{Agent: agent, SessionID: sessionID}, nil)
}

// Who refreshes agent's presence, optionally reporting its current busy
// state, and returns every agent's status.
func (c *Client) Who(ctx context.Context, agent string, busy *bool) (WhoResponse, error) {
	var resp WhoResponse
	err := c.call(ctx, ToolChatWho, WhoRequest{Agent: agent, Busy: busy}, &resp)
	return resp, err
}

// PingHTTP is the HTTP-port health probe: it only needs the endpoint to
// answer, not to succeed semantically.
func (c *Client) PingHTTP(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthz: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// PingSSE is the SSE-port health probe: it opens the event stream and
// confirms the server accepted the connection, then closes it.
func (c *Client) PingSSE(ctx context.Context, sseBaseURL string) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, sseBaseURL+"/mcp/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Session-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sse probe: unexpected status %d", resp.StatusCode)
	}
	return nil
}
