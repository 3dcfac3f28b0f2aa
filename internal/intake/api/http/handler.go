// Package httpapi exposes the intake engine over a JSON HTTP API.
package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harborlaw/intake/internal/intake/identity"
	"github.com/harborlaw/intake/internal/intake/index"
	"github.com/harborlaw/intake/internal/intake/session"
	apperrors "github.com/harborlaw/intake/internal/platform/errors"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Config assembles the HTTP handler's collaborators.
type Config struct {
	Sessions *session.Service
	// Index enables the firm-facing index routes when set.
	Index    index.Store
	Identity identity.VerifierConfig
	Logger   zerolog.Logger
}

// Handler serves the intake JSON API.
type Handler struct {
	sessions *session.Service
	index    index.Store
	identity identity.VerifierConfig
	logger   zerolog.Logger
	mux      *http.ServeMux
}

// NewHandler builds the intake API handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session service is required")
	}
	h := &Handler{
		sessions: cfg.Sessions,
		index:    cfg.Index,
		identity: cfg.Identity,
		logger:   cfg.Logger,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /healthz", h.handleHealth)

	h.mux.HandleFunc("POST /v1/conversations", h.handleCreate)
	h.mux.HandleFunc("POST /v1/conversations/resume", h.handleResume)
	h.mux.HandleFunc("GET /v1/conversations/{id}", h.handleGet)
	h.mux.HandleFunc("POST /v1/conversations/{id}/messages", h.handleAddMessage)
	h.mux.HandleFunc("POST /v1/conversations/{id}/secure", h.handleSecure)
	h.mux.HandleFunc("POST /v1/conversations/{id}/goals/{goalID}/complete", h.handleCompleteGoal)
	h.mux.HandleFunc("POST /v1/conversations/{id}/complete", h.handleComplete)
	h.mux.HandleFunc("POST /v1/conversations/{id}/terminate", h.handleTerminate)
	h.mux.HandleFunc("DELETE /v1/conversations/{id}", h.handleDelete)

	if h.index != nil {
		h.mux.HandleFunc("GET /v1/index/conversations", h.handleListEntries)
		h.mux.HandleFunc("GET /v1/index/conversations/{id}", h.handleGetEntry)
		h.mux.HandleFunc("PATCH /v1/index/conversations/{id}/admin", h.handleUpdateAdminFields)
	}
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	firmID := strings.TrimSpace(r.Header.Get(headerFirmID))
	result, err := h.sessions.Create(r.Context(), firmID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{
		Conversation: newConversationJSON(result.Conversation),
		ResumeToken:  result.ResumeToken,
		Greeting:     newMessageJSON(result.Greeting),
	})
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	firmID := strings.TrimSpace(r.Header.Get(headerFirmID))
	rawToken := strings.TrimSpace(r.Header.Get(headerResumeToken))
	view, err := h.sessions.Resume(r.Context(), firmID, rawToken)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newViewResponse(view))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, err := h.sessions.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newViewResponse(view))
}

func (h *Handler) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req addMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	reply, err := h.sessions.AddMessage(r.Context(), caller, r.PathValue("id"), session.AddMessageInput{
		Content:        req.Content,
		IdentityFields: req.IdentityFields,
		CompletedGoals: req.CompletedGoals,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, replyResponse{
		Conversation: newConversationJSON(reply.Conversation),
		AgentMessage: newMessageJSON(reply.AgentMessage),
		LoginURL:     reply.LoginURL,
	})
}

func (h *Handler) handleSecure(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	conv, err := h.sessions.Secure(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse{Conversation: newConversationJSON(conv)})
}

func (h *Handler) handleCompleteGoal(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	conv, err := h.sessions.CompleteGoal(r.Context(), caller, r.PathValue("id"), r.PathValue("goalID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse{Conversation: newConversationJSON(conv)})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	conv, err := h.sessions.Complete(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse{Conversation: newConversationJSON(conv)})
}

func (h *Handler) handleTerminate(w http.ResponseWriter, r *http.Request) {
	caller, err := h.caller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req terminateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	conv, err := h.sessions.Terminate(r.Context(), caller, r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse{Conversation: newConversationJSON(conv)})
}

// handleDelete soft-deletes a conversation. Staff-only: history stays intact
// but the conversation stops accepting operations.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	firmID, err := h.firmCaller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	conv, err := h.sessions.Delete(r.Context(), firmID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse{Conversation: newConversationJSON(conv)})
}

// firmCaller requires a verified identity plus a firm context; index and
// delete routes are staff-only.
func (h *Handler) firmCaller(r *http.Request) (string, error) {
	caller, err := h.caller(r)
	if err != nil {
		return "", err
	}
	if caller.UserID == "" {
		return "", apperrors.New(apperrors.CodeIntakeIdentityRequired, "a verified identity is required")
	}
	if caller.FirmID == "" {
		return "", apperrors.New(apperrors.CodeIntakeAccessDenied, "firm context is required")
	}
	return caller.FirmID, nil
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	firmID, err := h.firmCaller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	pageSize := defaultPageSize
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, r, h.logger, apperrors.New(apperrors.CodeIntakeValidation, "page_size must be a positive integer"))
			return
		}
		pageSize = min(parsed, maxPageSize)
	}

	page, err := h.index.ListEntries(r.Context(), firmID, pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	entries := make([]entryJSON, 0, len(page.Entries))
	for _, entry := range page.Entries {
		entries = append(entries, newEntryJSON(entry))
	}
	writeJSON(w, http.StatusOK, listEntriesResponse{Entries: entries, NextPageToken: page.NextPageToken})
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	firmID, err := h.firmCaller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	entry, err := h.index.GetEntry(r.Context(), firmID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Entry: newEntryJSON(entry)})
}

func (h *Handler) handleUpdateAdminFields(w http.ResponseWriter, r *http.Request) {
	firmID, err := h.firmCaller(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req adminFieldsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	conversationID := r.PathValue("id")
	fields := index.AdminFields{
		Assignee:      req.Assignee,
		Priority:      req.Priority,
		Tags:          req.Tags,
		InternalNotes: req.InternalNotes,
	}
	if err := h.index.UpdateAdminFields(r.Context(), firmID, conversationID, fields); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	entry, err := h.index.GetEntry(r.Context(), firmID, conversationID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Entry: newEntryJSON(entry)})
}
