package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"securesign/internal/lifecycle"
	"securesign/pkg/domain"
)

// /api/documents
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleUpload(w, r, user)
	case http.MethodGet:
		docs, err := s.lifecycle.List(user)
		if err != nil {
			writeLifecycleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": docs,
			"count": len(docs),
		})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowRate(w, r, s.uploadLimiter, "too many uploads") {
		s.audit(r, "document.upload", "rate_limited")
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	if !s.isExtensionAllowed(header.Filename) {
		writeError(w, http.StatusBadRequest, "unsupported file type")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}
	var expiry *time.Time
	if raw := r.FormValue("expiryDate"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "expiryDate must be RFC 3339")
			return
		}
		expiry = &parsed
	}
	doc, err := s.lifecycle.Upload(r.Context(), user, lifecycle.UploadInput{
		Title:         title,
		Filename:      header.Filename,
		SecurityLevel: r.FormValue("securityLevel"),
		ExpiryDate:    expiry,
		Data:          data,
	})
	if err != nil {
		s.audit(r, "document.upload", "fail", "reason", err.Error())
		writeLifecycleError(w, err)
		return
	}
	s.audit(r, "document.upload", "success", "document_id", doc.ID, "user_id", user.ID)
	writeJSON(w, http.StatusCreated, doc)
}

// /api/documents/{id} and /api/documents/{id}/{action}
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		doc, err := s.lifecycle.Get(id)
		if err != nil {
			writeLifecycleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}
	switch parts[1] {
	case "sign":
		s.handleSign(w, r, user, id)
	case "verify":
		s.handleVerify(w, r, user, id)
	case "share":
		s.handleShare(w, r, user, id)
	case "revoke":
		s.handleRevoke(w, r, user, id)
	case "history":
		s.handleHistory(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

type signRequest struct {
	SignatureBase64 string `json:"signatureBase64"`
	SignatureType   string `json:"signatureType"`
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req signRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 8<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SignatureBase64 == "" {
		writeError(w, http.StatusBadRequest, "signatureBase64 is required")
		return
	}
	doc, err := s.lifecycle.Sign(r.Context(), user, id, lifecycle.SignInput{
		SignatureBase64: req.SignatureBase64,
		SignatureType:   domain.SignatureType(req.SignatureType),
	})
	if err != nil {
		s.audit(r, "document.sign", "fail", "document_id", id, "reason", err.Error())
		writeLifecycleError(w, err)
		return
	}
	s.audit(r, "document.sign", "success", "document_id", id, "user_id", user.ID)
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	doc, verdict, err := s.lifecycle.Verify(r.Context(), user, id)
	if err != nil {
		s.audit(r, "document.verify", "fail", "document_id", id, "reason", err.Error())
		writeLifecycleError(w, err)
		return
	}
	s.audit(r, "document.verify", "success", "document_id", id, "valid", verdict.Valid)
	writeJSON(w, http.StatusOK, map[string]any{
		"document": doc,
		"valid":    verdict.Valid,
		"message":  verdict.Message,
		"details":  verdict.Details,
	})
}

type shareRequest struct {
	Email           string `json:"email"`
	PermissionLevel string `json:"permissionLevel"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req shareRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	doc, err := s.lifecycle.Share(r.Context(), user, id, req.Email, req.PermissionLevel)
	if err != nil {
		s.audit(r, "document.share", "fail", "document_id", id, "reason", err.Error())
		writeLifecycleError(w, err)
		return
	}
	s.audit(r, "document.share", "success", "document_id", id, "shared_with", req.Email)
	writeJSON(w, http.StatusOK, doc)
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req revokeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	doc, err := s.lifecycle.Revoke(r.Context(), user, id, req.Reason)
	if err != nil {
		s.audit(r, "document.revoke", "fail", "document_id", id, "reason", err.Error())
		writeLifecycleError(w, err)
		return
	}
	s.audit(r, "document.revoke", "success", "document_id", id)
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	entries, err := s.lifecycle.History(id)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"count": len(entries),
	})
}

func (s *Server) handleLedgerVerify(w http.ResponseWriter, r *http.Request, user domain.User) {
	_ = user
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	status, err := s.lifecycle.VerifyChain()
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":       status.Valid,
		"message":     status.Message,
		"totalBlocks": status.TotalBlocks,
	})
}

func (s *Server) handleLedgerActions(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	entries, err := s.lifecycle.UserActions(user)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"count": len(entries),
	})
}

func (s *Server) handleLedgerStats(w http.ResponseWriter, r *http.Request, user domain.User) {
	_ = user
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.lifecycle.LedgerStats()
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalBlocks":   stats.TotalBlocks,
		"actionsByType": stats.ActionsByType,
	})
}
