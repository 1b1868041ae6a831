package ledgerclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"securesign/pkg/domain"
)

// Client calls the blockchain ledger service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a ledger service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a ledger service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// RecordResponse acknowledges a recorded ledger action.
type RecordResponse struct {
	BlockID    int64  `json:"block_id"`
	Hash       string `json:"hash"`
	ActionType string `json:"action_type"`
	Timestamp  string `json:"timestamp"`
}

// ChainVerification is the integrity verdict over the whole chain.
type ChainVerification struct {
	Valid       bool   `json:"valid"`
	Message     string `json:"message"`
	TotalBlocks int64  `json:"total_blocks,omitempty"`
	BlockID     int64  `json:"block_id,omitempty"`
}

// Stats summarizes ledger activity for the compliance dashboard.
type Stats struct {
	TotalBlocks   int64            `json:"total_blocks"`
	ActionsByType map[string]int64 `json:"actions_by_type"`
	RecentActivity []struct {
		Action    string `json:"action"`
		Timestamp string `json:"timestamp"`
	} `json:"recent_activity"`
}

// Record appends an action to the ledger.
func (c *Client) Record(action domain.LedgerAction) (RecordResponse, error) {
	var resp RecordResponse
	if err := c.doJSON(http.MethodPost, "/blockchain/action", action, &resp); err != nil {
		return RecordResponse{}, err
	}
	return resp, nil
}

// DocumentHistory lists the ledger entries recorded for a document.
func (c *Client) DocumentHistory(documentID string) ([]domain.LedgerEntry, error) {
	var resp struct {
		DocumentID json.Number          `json:"document_id"`
		History    []domain.LedgerEntry `json:"history"`
	}
	path := fmt.Sprintf("/blockchain/document/%s/history", documentID)
	if err := c.doJSON(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

// UserActions lists the ledger entries recorded for a user.
func (c *Client) UserActions(userID string) ([]domain.LedgerEntry, error) {
	var resp struct {
		UserID  json.Number          `json:"user_id"`
		Actions []domain.LedgerEntry `json:"actions"`
	}
	path := fmt.Sprintf("/blockchain/user/%s/actions", userID)
	if err := c.doJSON(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Actions, nil
}

// VerifyChain checks hash-chain integrity across all blocks.
func (c *Client) VerifyChain() (ChainVerification, error) {
	var resp ChainVerification
	if err := c.doJSON(http.MethodGet, "/blockchain/verify", nil, &resp); err != nil {
		return ChainVerification{}, err
	}
	return resp, nil
}

// GetStats fetches aggregate ledger statistics.
func (c *Client) GetStats() (Stats, error) {
	var resp Stats
	if err := c.doJSON(http.MethodGet, "/blockchain/stats", nil, &resp); err != nil {
		return Stats{}, err
	}
	return resp, nil
}

func (c *Client) doJSON(method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
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
