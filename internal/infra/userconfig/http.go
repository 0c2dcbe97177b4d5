package userconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"boardnotice/internal/common"
	"boardnotice/internal/domain/notice"
)

var _ notice.UserConfigClient = (*HTTPClient)(nil)

const maxBodyBytes = 1 << 20 // 1 MB

// HTTPClient calls the boards server's user API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new user config client. A non-positive timeout defaults to 10s.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// userResponse is the wire form of a user.
type userResponse struct {
	ID       string            `json:"id"`
	Username string            `json:"username"`
	Roles    string            `json:"roles"`
	Props    map[string]string `json:"props"`
}

// GetUser fetches a user. Returns nil, nil on 404.
func (c *HTTPClient) GetUser(ctx context.Context, userID string) (*notice.UserProfile, error) {
	var resp userResponse
	found, err := c.do(ctx, http.MethodGet, "/api/v2/users/"+url.PathEscape(userID), nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", userID, err)
	}
	if !found {
		return nil, nil
	}

	return &notice.UserProfile{
		ID:       resp.ID,
		Username: resp.Username,
		Roles:    notice.ParseRoles(resp.Roles),
		Props:    resp.Props,
	}, nil
}

// UpdateUserConfig sends the patch and returns the user's updated properties.
// Returns nil, nil when the user does not exist or the server sent no body.
func (c *HTTPClient) UpdateUserConfig(ctx context.Context, userID string, patch *notice.UserConfigPatch) (map[string]string, error) {
	var props map[string]string
	found, err := c.do(ctx, http.MethodPut, "/api/v2/users/"+url.PathEscape(userID)+"/config", patch, &props)
	if err != nil {
		return nil, fmt.Errorf("patching config of user %s: %w", userID, err)
	}
	if !found {
		return nil, nil
	}
	return props, nil
}

// do executes a JSON request. It reports false on 404.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) (bool, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, common.NewProviderError("user api", err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return false, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error     string `json:"error"`
			ErrorCode int    `json:"errorCode"`
		}
		_ = json.Unmarshal(respBody, &errResp)

		msg := errResp.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return false, common.NewProviderError("user api", msg)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return false, fmt.Errorf("parsing response: %w", err)
	}
	return true, nil
}
