package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hearsaylabs/depogateway/internal/auth"
	"github.com/hearsaylabs/depogateway/internal/reconcile"
	"github.com/hearsaylabs/depogateway/internal/store"
	"github.com/hearsaylabs/depogateway/internal/upload"
	"github.com/hearsaylabs/depogateway/pkg/types"
)

// SignatureHeader carries the vendor's webhook signature.
const SignatureHeader = "X-Convai-Signature"

// maxWebhookBody bounds the raw payload read into memory before
// verification; transcripts run a few hundred KB at most.
const maxWebhookBody = 4 << 20

// Uploader is the slice of the upload coordinator the handlers need.
type Uploader interface {
	Initiate(ctx context.Context, caseID, conversationID string) (uploadID, key string, err error)
	PartURLs(ctx context.Context, uploadID, key string, partNumbers []int32) (map[int32]string, error)
	Complete(ctx context.Context, uploadID, key string, parts []upload.Part) error
	ViewURL(ctx context.Context, key string) (string, error)
}

type Handler struct {
	Auth       auth.Authenticator
	Reconciler *reconcile.Reconciler
	Uploads    Uploader
	Store      store.Store
	Log        *slog.Logger
	StubWindow time.Duration

	// PartSize is advertised to the browser on upload init so client-side
	// chunking matches what the gateway expects.
	PartSize int64

	// AnalysisTrigger, when set, is invoked in the background after a
	// completed upload so downstream processing can start without the
	// vendor webhook having arrived yet.
	AnalysisTrigger func(ctx context.Context, sessionID string)
}

// Webhook handles the vendor's post-call delivery. Authentication is the
// HMAC signature, not bearer auth; the raw body must be read before any
// parsing so the MAC covers exactly what was sent.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("read body"))
		return
	}

	ack, err := h.Reconciler.HandleEvent(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, reconcile.ErrUnauthorized):
			status = http.StatusUnauthorized
		case errors.Is(err, reconcile.ErrBadRequest):
			status = http.StatusBadRequest
		case errors.Is(err, reconcile.ErrNotFound):
			status = http.StatusNotFound
		default:
			h.Log.Error("webhook processing failed", "error", err)
		}
		writeJSON(w, status, errorBody(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, ack)
}

func (h *Handler) UploadInit(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if !h.ensureUploads(w) {
		return
	}
	var req types.UploadInitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	uploadID, key, err := h.Uploads.Initiate(r.Context(), req.CaseID, req.ConversationID)
	if err != nil {
		if errors.Is(err, upload.ErrMissingCaseID) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		h.Log.Error("upload init failed", "case_id", req.CaseID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody("upload init failed"))
		return
	}

	writeJSON(w, http.StatusOK, types.UploadInitResponse{OK: true, UploadID: uploadID, Key: key, PartSize: h.PartSize})
}

func (h *Handler) UploadURLs(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if !h.ensureUploads(w) {
		return
	}
	var req types.UploadURLsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	urls, err := h.Uploads.PartURLs(r.Context(), req.UploadID, req.Key, req.PartNumbers)
	if err != nil {
		if errors.Is(err, upload.ErrNoParts) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		h.Log.Error("presign parts failed", "upload_id", req.UploadID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody("presign failed"))
		return
	}

	writeJSON(w, http.StatusOK, types.UploadURLsResponse{OK: true, URLs: urls})
}

// UploadComplete finalizes the multipart upload, then records the recording
// key on the session. When no session exists yet the stub created here is
// the record the later webhook merges into.
func (h *Handler) UploadComplete(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if !h.ensureUploads(w) {
		return
	}
	var req types.UploadCompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CaseID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing caseId"))
		return
	}

	parts := make([]upload.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		parts = append(parts, upload.Part{PartNumber: p.PartNumber, ETag: p.ETag})
	}
	if err := h.Uploads.Complete(r.Context(), req.UploadID, req.Key, parts); err != nil {
		if errors.Is(err, upload.ErrMissingETag) || errors.Is(err, upload.ErrNoParts) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		h.Log.Error("upload complete failed", "upload_id", req.UploadID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody("upload complete failed"))
		return
	}

	session, err := h.Store.ResolveSession(r.Context(), req.CaseID, req.ConversationID, time.Now().UTC().Add(-h.StubWindow))
	if err != nil {
		h.Log.Error("session resolve after upload failed", "case_id", req.CaseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("session record failed"))
		return
	}
	session.RecordingKey = req.Key
	if req.ConversationID != "" {
		session.ConversationID = req.ConversationID
	}
	if err := h.Store.UpdateSession(r.Context(), session); err != nil {
		h.Log.Error("session update after upload failed", "session_id", session.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("session record failed"))
		return
	}

	if h.AnalysisTrigger != nil {
		go h.AnalysisTrigger(context.WithoutCancel(r.Context()), session.ID)
	}

	writeJSON(w, http.StatusOK, types.UploadCompleteResponse{OK: true, SimulationID: session.ID})
}

// simulationResponse is the read-side view of a session plus a short-lived
// playback URL when a recording exists.
type simulationResponse struct {
	OK           bool          `json:"ok"`
	Simulation   store.Session `json:"simulation"`
	RecordingURL string        `json:"recording_url,omitempty"`
}

func (h *Handler) Simulation(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/simulations/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusNotFound, errorBody("unknown simulation"))
		return
	}

	session, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("unknown simulation"))
			return
		}
		h.Log.Error("simulation lookup failed", "session_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("lookup failed"))
		return
	}

	resp := simulationResponse{OK: true, Simulation: session}
	if session.RecordingKey != "" && h.Uploads != nil {
		url, err := h.Uploads.ViewURL(r.Context(), session.RecordingKey)
		if err != nil {
			h.Log.Warn("playback presign failed", "session_id", id, "error", err)
		} else {
			resp.RecordingURL = url
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ensureUploads rejects upload calls on deployments with no object store
// configured rather than panicking on a nil coordinator.
func (h *Handler) ensureUploads(w http.ResponseWriter) bool {
	if h.Uploads == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("uploads not configured"))
		return false
	}
	return true
}

func (h *Handler) ensureAuth(w http.ResponseWriter, r *http.Request) bool {
	_, err := h.Auth.Authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody(err.Error()))
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed request body"))
		return false
	}
	return true
}

// errorResponse keeps failure bodies shaped like success bodies: callers can
// always branch on "ok" without sniffing for an "error" key first.
type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func errorBody(msg string) errorResponse {
	return errorResponse{Error: msg}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
