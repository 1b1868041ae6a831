package cryptoclient

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

// Client calls the cryptographic signing service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a signing service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a signing service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SigningInfo describes the scheme the service signed with.
type SigningInfo struct {
	Algorithm       string `json:"algorithm"`
	SignatureType   string `json:"signature_type"`
	KeyType         string `json:"key_type"`
	KeySize         int    `json:"key_size"`
	SignatureFormat string `json:"signature_format"`
}

// SignedPackage is the signing service's response: the cryptographic
// signature plus the authoritative document hash.
type SignedPackage struct {
	Timestamp     string      `json:"timestamp"`
	Signature     string      `json:"signature"`
	HashAlgorithm string      `json:"hash_algorithm"`
	UserID        string      `json:"user_id"`
	DocumentHash  string      `json:"document_hash"`
	SigningInfo   SigningInfo `json:"signing_info"`
	Metadata      struct {
		OriginalFilename string `json:"original_filename"`
		ContentType      string `json:"content_type"`
		FileSize         int64  `json:"file_size"`
	} `json:"metadata"`
}

// VerifyResult is the service's verdict on a signed package. A negative
// verdict is a normal result, not an error.
type VerifyResult struct {
	Valid   bool           `json:"valid"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// GenerateKeys provisions a signing key pair for the user.
func (c *Client) GenerateKeys(userID string) error {
	path := fmt.Sprintf("%s/users/%s/keys", c.baseURL, userID)
	req, err := http.NewRequest(http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Sign submits the document bytes and the hand-drawn signature image for
// cryptographic signing.
func (c *Client) Sign(filename string, document io.Reader, signatureBase64, userID string) (SignedPackage, error) {
	pkg, _, err := c.SignRaw(filename, document, signatureBase64, userID)
	return pkg, err
}

// SignRaw is Sign, additionally returning the raw response body. The
// body is the signed package exactly as the service produced it and is
// what Verify later expects back byte for byte.
func (c *Client) SignRaw(filename string, document io.Reader, signatureBase64, userID string) (SignedPackage, []byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("document", filename)
	if err != nil {
		return SignedPackage{}, nil, err
	}
	if _, err := io.Copy(part, document); err != nil {
		return SignedPackage{}, nil, err
	}
	if err := writer.WriteField("signature_base64", signatureBase64); err != nil {
		return SignedPackage{}, nil, err
	}
	if err := writer.WriteField("user_id", userID); err != nil {
		return SignedPackage{}, nil, err
	}
	if err := writer.Close(); err != nil {
		return SignedPackage{}, nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/sign", body)
	if err != nil {
		return SignedPackage{}, nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	raw, err := c.doRaw(req)
	if err != nil {
		return SignedPackage{}, nil, err
	}
	var pkg SignedPackage
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return SignedPackage{}, nil, err
	}
	return pkg, raw, nil
}

// Verify submits the document, the signed package produced by Sign, and
// the signature image for verification.
func (c *Client) Verify(filename string, document io.Reader, signedPackage []byte, signatureBase64 string) (VerifyResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("document", filename)
	if err != nil {
		return VerifyResult{}, err
	}
	if _, err := io.Copy(part, document); err != nil {
		return VerifyResult{}, err
	}
	pkgPart, err := writer.CreateFormFile("signed_package", "signed_"+filename+".json")
	if err != nil {
		return VerifyResult{}, err
	}
	if _, err := pkgPart.Write(signedPackage); err != nil {
		return VerifyResult{}, err
	}
	if err := writer.WriteField("signature_base64", signatureBase64); err != nil {
		return VerifyResult{}, err
	}
	if err := writer.Close(); err != nil {
		return VerifyResult{}, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/verify", body)
	if err != nil {
		return VerifyResult{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result VerifyResult
	if err := c.do(req, &result); err != nil {
		return VerifyResult{}, err
	}
	return result, nil
}

func (c *Client) doRaw(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return data, nil
}

func (c *Client) do(req *http.Request, out any) error {
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
