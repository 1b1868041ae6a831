package docclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Client calls the document storage service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a document service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a document service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// UploadResponse is the storage service's answer to a document upload.
type UploadResponse struct {
	DocumentID      json.Number `json:"document_id"`
	Title           string      `json:"title"`
	Filename        string      `json:"filename"`
	FileType        string      `json:"file_type"`
	FileSize        int64       `json:"file_size"`
	DocumentHash    string      `json:"document_hash"`
	ContentHash     string      `json:"content_hash"`
	UploadTimestamp string      `json:"upload_timestamp"`
	BlockchainTxID  json.Number `json:"blockchain_tx_id"`
	Status          string      `json:"status"`
}

// Upload streams the file as multipart form data together with its
// descriptive fields. Hashing and identifier assignment happen on the
// service side.
func (c *Client) Upload(title, userID, securityLevel, filename string, r io.Reader) (UploadResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return UploadResponse{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResponse{}, err
	}
	if err := writer.WriteField("title", title); err != nil {
		return UploadResponse{}, err
	}
	if err := writer.WriteField("user_id", userID); err != nil {
		return UploadResponse{}, err
	}
	if securityLevel != "" {
		if err := writer.WriteField("security_level", securityLevel); err != nil {
			return UploadResponse{}, err
		}
	}
	if err := writer.Close(); err != nil {
		return UploadResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/documents/upload", body)
	if err != nil {
		return UploadResponse{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp UploadResponse
	if err := c.do(req, &resp); err != nil {
		return UploadResponse{}, err
	}
	return resp, nil
}

// SignRequest records an applied signature with the storage service.
type SignRequest struct {
	UserID          string         `json:"user_id"`
	SignatureType   string         `json:"signature_type"`
	SignatureData   string         `json:"signature_data"`
	CryptoSignature string         `json:"crypto_signature"`
	Algorithm       string         `json:"algorithm"`
	KeyType         string         `json:"key_type"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// SignResponse acknowledges a recorded signature.
type SignResponse struct {
	SignatureID    json.Number `json:"signature_id"`
	DocumentID     json.Number `json:"document_id"`
	Timestamp      string      `json:"timestamp"`
	BlockchainTxID json.Number `json:"blockchain_tx_id"`
	Status         string      `json:"status"`
}

// RecordSignature persists an applied signature for a stored document.
func (c *Client) RecordSignature(documentID string, reqBody SignRequest) (SignResponse, error) {
	var resp SignResponse
	path := fmt.Sprintf("/documents/%s/sign", documentID)
	if err := c.doJSON(http.MethodPost, path, reqBody, &resp); err != nil {
		return SignResponse{}, err
	}
	return resp, nil
}

// ShareRequest grants a recipient access to a stored document.
type ShareRequest struct {
	SharedBy        string `json:"shared_by"`
	SharedWithEmail string `json:"shared_with_email"`
	PermissionLevel string `json:"permission_level,omitempty"`
}

// ShareResponse acknowledges a share grant.
type ShareResponse struct {
	ShareID         json.Number `json:"share_id"`
	DocumentID      json.Number `json:"document_id"`
	ShareToken      string      `json:"share_token"`
	SharedWith      string      `json:"shared_with"`
	PermissionLevel string      `json:"permission_level"`
	Timestamp       string      `json:"timestamp"`
	BlockchainTxID  json.Number `json:"blockchain_tx_id"`
	Status          string      `json:"status"`
}

// Share records a document share with the storage service.
func (c *Client) Share(documentID string, reqBody ShareRequest) (ShareResponse, error) {
	var resp ShareResponse
	path := fmt.Sprintf("/documents/%s/share", documentID)
	if err := c.doJSON(http.MethodPost, path, reqBody, &resp); err != nil {
		return ShareResponse{}, err
	}
	return resp, nil
}

// Download fetches the stored file bytes.
func (c *Client) Download(documentID string) ([]byte, error) {
	path := fmt.Sprintf("%s/documents/%s/download", c.baseURL, documentID)
	req, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

// Health reports whether the storage service answers its health probe.
func (c *Client) Health() bool {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) doJSON(method, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
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
