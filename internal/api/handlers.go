package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"secure.vault/internal/access"
	"secure.vault/internal/models"
	"secure.vault/internal/store"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	engine *access.Engine
	store  store.Store
	logger *slog.Logger
}

func NewHandler(engine *access.Engine, s store.Store, logger *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		store:  s,
		logger: logger,
	}
}

type CreateRequest struct {
	Name          *string            `json:"name"`
	Type          *models.ObjectType `json:"type"`
	Content       json.RawMessage    `json:"content"`
	TTLHours      *float64           `json:"ttlHours"`
	OwnerEmail    string             `json:"ownerEmail"`
	OwnerName     string             `json:"ownerName"`
	OneTimeAccess bool               `json:"oneTimeAccess"`
	EnableMFA     bool               `json:"enableMFA"`
}

// missing lists required fields that are absent or null. Zero and false
// are present values.
func (req *CreateRequest) missing() []string {
	var out []string
	if req.Name == nil {
		out = append(out, "name")
	}
	if req.Type == nil {
		out = append(out, "type")
	}
	if c := strings.TrimSpace(string(req.Content)); c == "" || c == "null" {
		out = append(out, "content")
	}
	if req.TTLHours == nil {
		out = append(out, "ttlHours")
	}
	return out
}

type UpdateRequest struct {
	ID      string        `json:"id"`
	Updates *access.Patch `json:"updates"`
}

type ToggleRequest struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// ObjectView is the public shape of a stored object. The TOTP secret is
// never exposed.
type ObjectView struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Type          models.ObjectType `json:"type"`
	Content       string            `json:"content"`
	Token         string            `json:"token"`
	TTL           int64             `json:"ttl"`
	CreatedAt     int64             `json:"createdAt"`
	HitCount      int               `json:"hitCount"`
	LastHit       *int64            `json:"lastHit,omitempty"`
	OwnerEmail    string            `json:"ownerEmail"`
	OwnerName     string            `json:"ownerName"`
	OneTimeAccess bool              `json:"oneTimeAccess"`
	MFAEnabled    bool              `json:"mfaEnabled"`
}

func newObjectView(o *models.Object) ObjectView {
	return ObjectView{
		ID:            o.ID,
		Name:          o.Name,
		Type:          o.Type,
		Content:       o.Content,
		Token:         o.Token,
		TTL:           o.TTL,
		CreatedAt:     o.CreatedAt,
		HitCount:      o.HitCount,
		LastHit:       o.LastHit,
		OwnerEmail:    o.OwnerEmail,
		OwnerName:     o.OwnerName,
		OneTimeAccess: o.OneTimeAccess,
		MFAEnabled:    o.MFAEnabled(),
	}
}

func newObjectViews(objs []*models.Object) []ObjectView {
	out := make([]ObjectView, 0, len(objs))
	for _, o := range objs {
		out = append(out, newObjectView(o))
	}
	return out
}

type CreateResponse struct {
	ObjectView
	TOTPURI string `json:"totpUri,omitempty"`
	TOTPQR  string `json:"totpQR,omitempty"`
}

type ReadResponse struct {
	Content models.Content `json:"content"`
	Hits    int            `json:"hits"`
}

type TokenReadResponse struct {
	Name    string            `json:"name"`
	Type    models.ObjectType `json:"type"`
	Content models.Content    `json:"content"`
	Hits    int               `json:"hits"`
}

type ObjectsResponse struct {
	Objects []ObjectView `json:"objects"`
}

type ObjectResponse struct {
	Object ObjectView `json:"object"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type SweepResponse struct {
	Deleted int `json:"deleted"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MFAErrorResponse struct {
	Error        string `json:"error"`
	RequiresTOTP bool   `json:"requiresTOTP"`
	TOTPQR       string `json:"totpQR,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "health check failed", "error", err)
		h.json(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateObject(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	if missing := req.missing(); len(missing) > 0 {
		h.error(w, http.StatusBadRequest, "missing required fields: "+strings.Join(missing, ", "))
		return
	}

	created, err := h.engine.Create(r.Context(), access.CreateInput{
		Name:          *req.Name,
		Type:          *req.Type,
		Content:       req.Content,
		TTLHours:      *req.TTLHours,
		OwnerEmail:    req.OwnerEmail,
		OwnerName:     req.OwnerName,
		OneTimeAccess: req.OneTimeAccess,
		EnableMFA:     req.EnableMFA,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.json(w, http.StatusCreated, CreateResponse{
		ObjectView: newObjectView(created.Object),
		TOTPURI:    created.TOTPURI,
		TOTPQR:     created.TOTPQR,
	})
}

func (h *Handler) FetchObject(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name, token := q.Get("name"), q.Get("token")
	if name == "" || token == "" {
		h.error(w, http.StatusBadRequest, "name and token are required")
		return
	}

	reading, err := h.engine.Fetch(r.Context(), name, token, q.Get("totpCode"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.json(w, http.StatusOK, ReadResponse{Content: reading.Content, Hits: reading.Hits})
}

func (h *Handler) FetchByToken(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	if token == "" {
		h.error(w, http.StatusBadRequest, "token is required")
		return
	}

	reading, err := h.engine.FetchByToken(r.Context(), token, q.Get("totpCode"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.json(w, http.StatusOK, TokenReadResponse{
		Name:    reading.Name,
		Type:    reading.Type,
		Content: reading.Content,
		Hits:    reading.Hits,
	})
}

func (h *Handler) ListUserObjects(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		h.error(w, http.StatusBadRequest, "email is required")
		return
	}

	objs, err := h.engine.ListByOwner(r.Context(), email)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.json(w, http.StatusOK, ObjectsResponse{Objects: newObjectViews(objs)})
}

func (h *Handler) UpdateObject(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		h.error(w, http.StatusBadRequest, "id is required")
		return
	}

	var patch access.Patch
	if req.Updates != nil {
		patch = *req.Updates
	}

	obj, err := h.engine.Update(r.Context(), req.ID, patch)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.json(w, http.StatusOK, ObjectResponse{Object: newObjectView(obj)})
}

func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.engine.Delete(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.json(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) ToggleObject(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.Token == "" {
		h.error(w, http.StatusBadRequest, "name and token are required")
		return
	}

	reading, err := h.engine.Toggle(r.Context(), req.Name, req.Token)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.json(w, http.StatusOK, ReadResponse{Content: reading.Content, Hits: reading.Hits})
}

func (h *Handler) ListAllObjects(w http.ResponseWriter, r *http.Request) {
	objs, err := h.engine.ListAll(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, ObjectsResponse{Objects: newObjectViews(objs)})
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.Sweep(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, SweepResponse{Deleted: n})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) error(w http.ResponseWriter, status int, message string) {
	h.json(w, status, ErrorResponse{Error: message})
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var mfaErr *access.MFAError
	switch {
	case errors.As(err, &mfaErr):
		h.json(w, http.StatusForbidden, MFAErrorResponse{
			Error:        "TOTP code required",
			RequiresTOTP: true,
			TOTPQR:       mfaErr.QR,
		})
	case errors.Is(err, access.ErrMFAInvalid):
		h.json(w, http.StatusForbidden, MFAErrorResponse{
			Error:        "invalid TOTP code",
			RequiresTOTP: true,
		})
	case errors.Is(err, access.ErrValidation), errors.Is(err, access.ErrInvalidOperation):
		h.error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, access.ErrNotFound):
		h.error(w, http.StatusNotFound, "object not found")
	case errors.Is(err, access.ErrExpired):
		h.error(w, http.StatusGone, "object has expired")
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"requestID", RequestIDFromContext(r.Context()),
		)
		h.error(w, http.StatusInternalServerError, "internal error")
	}
}
