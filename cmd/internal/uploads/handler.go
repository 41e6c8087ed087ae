// Package uploads serves the portal's file upload endpoint: one authenticated
// multipart file per request, streamed into a blob store.
package uploads

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/raj783e/campus/cmd/identity"
	"github.com/raj783e/campus/cmd/internal/blob"
)

// DevUserHeader carries the claimed user id when the authenticator runs in insecure
// dev mode. It is ignored otherwise.
const DevUserHeader = "X-Campus-User"

// multipartOverhead is the body allowance on top of the file limit for part headers
// and boundaries.
const multipartOverhead = 64 << 10

// Handler wires POST /v1/uploads/{feature} to identity and a blob store.
type Handler struct {
	log      *slog.Logger
	auth     *identity.Authenticator
	blobs    blob.Store
	maxBytes int64
	now      func() time.Time
}

// NewHandler constructs a Handler. maxBytes bounds the request body.
func NewHandler(log *slog.Logger, auth *identity.Authenticator, blobs blob.Store, maxBytes int64) (*Handler, error) {
	if auth == nil {
		return nil, errors.New("uploads: nil authenticator")
	}
	if blobs == nil {
		return nil, errors.New("uploads: nil blob store")
	}
	if log == nil {
		log = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Handler{log: log, auth: auth, blobs: blobs, maxBytes: maxBytes, now: time.Now}, nil
}

// Register wires upload routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /v1/uploads/{feature}", h.handleUpload)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	feature := strings.TrimSpace(r.PathValue("feature"))
	if !blob.Features[feature] {
		writeError(w, http.StatusNotFound, "unknown_feature", "unknown upload feature")
		return
	}

	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	part, err := filePart(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "multipart field \"file\" required")
		return
	}
	defer func() { _ = part.Close() }()

	key, err := blob.Key(feature, p.ID, part.FileName(), h.now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid upload key")
		return
	}

	url, err := h.blobs.Put(r.Context(), key, part, part.Header.Get("Content-Type"))
	if err != nil {
		status, code := classifyPutErr(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("upload.put.fail", "feature", feature, "user_id", p.ID, "err", err)
		}
		writeError(w, status, code, http.StatusText(status))
		return
	}

	h.log.Info("upload.stored", "feature", feature, "user_id", p.ID, "key", key)
	writeJSON(w, http.StatusCreated, uploadResponse{Key: key, URL: url})
}

func classifyPutErr(err error) (int, string) {
	var mbe *http.MaxBytesError
	switch {
	case errors.Is(err, blob.ErrTooLarge), errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, blob.ErrInvalidKey):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// filePart advances the multipart stream to the "file" field.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errors.New("uploads: file part missing")
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		_ = part.Close()
	}
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	creds := identity.Credentials{
		Token:  bearerToken(r),
		UserID: strings.TrimSpace(r.Header.Get(DevUserHeader)),
	}
	if creds.Token == "" && creds.UserID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return identity.Principal{}, false
	}
	p, err := h.auth.Authenticate(r.Context(), creds)
	if err != nil {
		if !identity.IsUnauthenticated(err) && !identity.IsInvalidInput(err) {
			h.log.Error("upload.auth.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return identity.Principal{}, false
		}
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return identity.Principal{}, false
	}
	return p, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
