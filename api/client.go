package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Tk21111/meeting_board/room"
)

// TokenClient fetches meeting credentials from the relay's HTTP API. It
// implements room.TokenSource.
type TokenClient struct {
	BaseURL string
	HTTP    *http.Client
	// Header is added to every request, e.g. Authorization or X-User-Id.
	Header http.Header
}

var _ room.TokenSource = (*TokenClient)(nil)

func (c *TokenClient) MeetingToken(ctx context.Context, topicID, courseID string) (room.Credentials, error) {
	endpoint := strings.TrimRight(c.BaseURL, "/") +
		"/course/" + url.PathEscape(courseID) +
		"/meeting/" + url.PathEscape(topicID) + "/token"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return room.Credentials{}, fmt.Errorf("api: token request: %w", err)
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return room.Credentials{}, fmt.Errorf("api: token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return room.Credentials{}, fmt.Errorf("api: token: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var creds room.Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return room.Credentials{}, fmt.Errorf("api: token: decode: %w", err)
	}
	if creds.Token == "" || creds.WSURL == "" {
		return room.Credentials{}, fmt.Errorf("api: token: incomplete credentials")
	}
	return creds, nil
}
