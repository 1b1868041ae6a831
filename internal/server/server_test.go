package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"golang.org/x/crypto/bcrypt"

	"securesign/internal/ledger"
	"securesign/internal/lifecycle"
	"securesign/internal/registry"
	"securesign/internal/session"
	"securesign/internal/standalone"
	"securesign/pkg/domain"
	"securesign/pkg/storage"
)

const testJWTSecret = "server-test-secret"

func newTestStack(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash demo password: %v", err)
	}
	secret := []byte(testJWTSecret)
	auth := standalone.NewAuth(secret, "demo@example.com", string(hash))
	docs := standalone.NewStorage()
	signer := standalone.NewSigner(secret)
	ledgerCap := standalone.NewLedger()

	reg := registry.New(registry.NewMemoryStore())
	payloads := storage.NewMemoryStore()
	tokens, err := session.NewTokenStore(t.TempDir())
	if err != nil {
		t.Fatalf("new token store: %v", err)
	}
	sessions := session.NewManager(auth, tokens, secret, 0)
	recorder := ledger.NewRecorder(nil, ledgerCap, slog.Default(), 0)
	orch := lifecycle.New(reg, payloads, docs, signer, ledgerCap, recorder, slog.Default())

	cfg.Sessions = sessions
	cfg.Lifecycle = orch
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, token string, payload any) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}

func loginDemo(t *testing.T, baseURL string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, baseURL+"/api/auth/login", "", map[string]string{
		"email":    "demo@example.com",
		"password": "password",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("parse login response: %v", err)
	}
	if out.User.Email != "demo@example.com" {
		t.Fatalf("unexpected login user: %+v", out.User)
	}
	if out.Token == "" {
		t.Fatal("login response is missing the session token")
	}
	return out.Token
}

func uploadDocument(t *testing.T, baseURL, token, level string) domain.Document {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "contract.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4 test")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	_ = writer.WriteField("title", "Contract")
	if level != "" {
		_ = writer.WriteField("securityLevel", level)
	}
	_ = writer.Close()

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/documents", body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload expected 201, got %d: %s", resp.StatusCode, data)
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse document: %v", err)
	}
	return doc
}

func TestRegisterReturnsUsableToken(t *testing.T) {
	ts := newTestStack(t, Config{})
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/auth/register", "", map[string]string{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "s3cret",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register expected 201, got %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("parse register response: %v", err)
	}
	if out.Token == "" {
		t.Fatal("register response is missing the session token")
	}
	// The echoed token must authenticate the account it was issued for.
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/auth/me", out.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me expected 200, got %d: %s", resp.StatusCode, body)
	}
	var me domain.User
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("parse me: %v", err)
	}
	if me.Email != "alice@example.com" {
		t.Fatalf("token resolved to the wrong account: %+v", me)
	}
}

func TestRequiresBearerToken(t *testing.T) {
	ts := newTestStack(t, Config{})
	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/documents", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestStack(t, Config{})
	resp, body := doJSON(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
}

func TestFullDocumentLifecycle(t *testing.T) {
	ts := newTestStack(t, Config{})
	token := loginDemo(t, ts.URL)

	// keys
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/keys", token, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("keys expected 201, got %d: %s", resp.StatusCode, body)
	}

	doc := uploadDocument(t, ts.URL, token, "HIGH")
	if doc.Status != domain.StatusUploaded || doc.Metadata.SignaturesRequired != 1 {
		t.Fatalf("unexpected uploaded document: %+v", doc)
	}

	// sign
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/sign", token, map[string]string{
		"signatureBase64": "aW1hZ2U=",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sign expected 200, got %d: %s", resp.StatusCode, body)
	}
	var signed domain.Document
	if err := json.Unmarshal(body, &signed); err != nil {
		t.Fatalf("parse signed: %v", err)
	}
	if signed.Status != domain.StatusSigned || len(signed.Signatures) != 1 {
		t.Fatalf("unexpected signed document: %+v", signed)
	}

	// verify
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/verify", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify expected 200, got %d: %s", resp.StatusCode, body)
	}
	var verdict struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(body, &verdict); err != nil {
		t.Fatalf("parse verdict: %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("expected valid verdict: %s", body)
	}

	// share
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/share", token, map[string]string{
		"email": "peer@example.com",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("share expected 200, got %d: %s", resp.StatusCode, body)
	}

	// history (ledger, recorded synchronously in this stack)
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/documents/"+doc.ID+"/history", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history expected 200, got %d: %s", resp.StatusCode, body)
	}
	var history struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("parse history: %v", err)
	}
	if history.Count < 3 { // UPLOAD, SIGN, VERIFY at minimum
		t.Fatalf("expected at least 3 ledger entries, got %d", history.Count)
	}

	// revoke, then sign again -> conflict
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/revoke", token, map[string]string{
		"reason": "superseded",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke expected 200, got %d: %s", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/sign", token, map[string]string{
		"signatureBase64": "aW1hZ2U=",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("sign after revoke expected 409, got %d", resp.StatusCode)
	}

	// ledger integrity endpoint
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/ledger/verify", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ledger verify expected 200, got %d: %s", resp.StatusCode, body)
	}
	var chain struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(body, &chain); err != nil {
		t.Fatalf("parse chain status: %v", err)
	}
	if !chain.Valid {
		t.Fatalf("expected intact chain: %s", body)
	}
}

func TestSignWithoutKeysIsPreconditionFailure(t *testing.T) {
	ts := newTestStack(t, Config{})
	token := loginDemo(t, ts.URL)
	doc := uploadDocument(t, ts.URL, token, "")
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/sign", token, map[string]string{
		"signatureBase64": "aW1hZ2U=",
	})
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d: %s", resp.StatusCode, body)
	}
}

func TestVerifyUnsignedIsPreconditionFailure(t *testing.T) {
	ts := newTestStack(t, Config{})
	token := loginDemo(t, ts.URL)
	doc := uploadDocument(t, ts.URL, token, "")
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/verify", token, nil)
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d: %s", resp.StatusCode, body)
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	ts := newTestStack(t, Config{AllowedExtensions: []string{".pdf"}})
	token := loginDemo(t, ts.URL)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("file", "malware.exe")
	_, _ = part.Write([]byte("MZ"))
	_ = writer.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/documents", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported extension, got %d", resp.StatusCode)
	}
}

func TestLoginRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	ts := newTestStack(t, Config{
		RedisAddr:               redis.Addr(),
		LoginRateLimitPerMinute: 1,
	})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"email": "demo@example.com", "password": "password",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first login expected 200, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"email": "demo@example.com", "password": "password",
	})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second login expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestDocumentNotFoundIs404(t *testing.T) {
	ts := newTestStack(t, Config{})
	token := loginDemo(t, ts.URL)
	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/documents/missing", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
