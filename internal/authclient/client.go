package authclient

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"securesign/pkg/domain"
)

// Client calls the auth service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents an auth service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs an auth service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// LoginResult carries the bearer token and profile issued on login.
type LoginResult struct {
	Token string      `json:"token"`
	User  domain.User `json:"userInfo"`
}

// Register creates an account. The auth service responds with a status
// envelope; a non-2xx status surfaces as APIError.
func (c *Client) Register(name, email, password string) error {
	payload := map[string]string{"name": name, "email": email, "password": password}
	return c.doJSON(http.MethodPost, "/register", "", payload, nil)
}

// Login exchanges credentials for a bearer token and user profile.
func (c *Client) Login(email, password string) (LoginResult, error) {
	payload := map[string]string{"email": email, "password": password}
	var resp LoginResult
	if err := c.doJSON(http.MethodPost, "/login", "", payload, &resp); err != nil {
		return LoginResult{}, err
	}
	return resp, nil
}

// CheckToken validates a bearer token against the auth service.
func (c *Client) CheckToken(token string) (bool, error) {
	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Valid bool `json:"valid"`
		} `json:"data"`
	}
	if err := c.doJSON(http.MethodGet, "/check-token", token, nil, &resp); err != nil {
		return false, err
	}
	return resp.Data.Valid || strings.EqualFold(resp.Status, "success"), nil
}

// Me fetches the profile behind a bearer token.
func (c *Client) Me(token string) (domain.User, error) {
	var resp struct {
		Data domain.User `json:"data"`
	}
	if err := c.doJSON(http.MethodGet, "/me", token, nil, &resp); err != nil {
		return domain.User{}, err
	}
	return resp.Data, nil
}

// LoginHistory lists the caller's recent login attempts.
func (c *Client) LoginHistory(token string) ([]domain.LoginHistoryEntry, error) {
	var resp struct {
		Data []domain.LoginHistoryEntry `json:"data"`
	}
	if err := c.doJSON(http.MethodGet, "/login-history", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// UpdateProfile changes name/organization on the profile.
func (c *Client) UpdateProfile(token, name, organization string) error {
	payload := map[string]string{"name": name}
	if organization != "" {
		payload["company"] = organization
	}
	return c.doJSON(http.MethodPut, "/update", token, payload, nil)
}

// UpdatePassword rotates the account password.
func (c *Client) UpdatePassword(token, current, next string) error {
	payload := map[string]string{
		"current-password": current,
		"new-password":     next,
		"confirm-password": next,
	}
	return c.doJSON(http.MethodPut, "/update-password", token, payload, nil)
}

func (c *Client) doJSON(method, path, token string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Message
		if msg == "" {
			msg = errResp.Error
		}
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
