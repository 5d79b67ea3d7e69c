package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"gwi.com/agenda/internal/auth"
	"gwi.com/agenda/internal/core"
	"gwi.com/agenda/internal/llm"
	"gwi.com/agenda/internal/store"
	"gwi.com/agenda/internal/tools"
)

const maxBodyBytes = 1 << 20

type APIHandler struct {
	contacts  *core.ContactService
	chat      *core.ChatService
	jwtSecret string
}

func NewAPIHandler(contacts *core.ContactService, chat *core.ChatService, jwtSecret string) *APIHandler {
	return &APIHandler{
		contacts:  contacts,
		chat:      chat,
		jwtSecret: jwtSecret,
	}
}

type errorResponse struct {
	Detail string             `json:"detail"`
	Step   string             `json:"step,omitempty"`
	Tool   string             `json:"tool,omitempty"`
	Errors []store.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp errorResponse) {
	writeJSON(w, status, resp)
}

// JWTAuthMiddleware requires a valid bearer token. It is a no-op when no
// secret is configured.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.jwtSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, errorResponse{Detail: "Authorization header is required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		subject, err := auth.ValidateJWT(h.jwtSecret, tokenString)
		if err != nil {
			hlog.FromRequest(r).Debug().Err(err).Msg("Rejected token")
			writeError(w, http.StatusUnauthorized, errorResponse{Detail: "Invalid token"})
			return
		}

		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("subject", subject)
		})
		next.ServeHTTP(w, r)
	})
}

func (h *APIHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Bienvenido a la Agenda Telefónica"})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) ListToolsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chat.Tools())
}

// decodeObject reads a JSON object body, keeping numbers as json.Number so
// integer checks are exact. It writes the error response itself.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Detail: "Invalid request body: " + err.Error()})
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Detail: "Invalid request body: " + err.Error()})
		return nil, false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, errorResponse{Detail: "Invalid request body: trailing data"})
		return nil, false
	}
	fields, ok := body.(map[string]any)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, errorResponse{Detail: "Request body must be a JSON object"})
		return nil, false
	}
	return fields, true
}

func contactID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, errorResponse{Detail: "Contact id must be an integer"})
		return 0, false
	}
	return id, true
}

func writeContactError(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *store.NotFoundError
	var invalid *store.ValidationError
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, errorResponse{Detail: "Contacto no encontrado"})
	case errors.As(err, &invalid):
		writeError(w, http.StatusUnprocessableEntity, errorResponse{Detail: invalid.Error(), Errors: invalid.Fields})
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("Contact operation failed")
		writeError(w, http.StatusInternalServerError, errorResponse{Detail: "Failed to access the contact store"})
	}
}

func (h *APIHandler) CreateContactHandler(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeObject(w, r)
	if !ok {
		return
	}
	contact, err := h.contacts.Create(r.Context(), fields)
	if err != nil {
		writeContactError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

func (h *APIHandler) ListContactsHandler(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.contacts.List(r.Context())
	if err != nil {
		writeContactError(w, r, err)
		return
	}
	if contacts == nil {
		contacts = []store.Contact{}
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *APIHandler) GetContactHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := contactID(w, r)
	if !ok {
		return
	}
	contact, err := h.contacts.Get(r.Context(), id)
	if err != nil {
		writeContactError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (h *APIHandler) ReplaceContactHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := contactID(w, r)
	if !ok {
		return
	}
	fields, ok := decodeObject(w, r)
	if !ok {
		return
	}
	contact, err := h.contacts.Replace(r.Context(), id, fields)
	if err != nil {
		writeContactError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (h *APIHandler) DeleteContactHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := contactID(w, r)
	if !ok {
		return
	}
	if err := h.contacts.Delete(r.Context(), id); err != nil {
		writeContactError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Contacto eliminado"})
}

type ChatRequest struct {
	Prompt string `json:"prompt"`
}

type ChatResponse struct {
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Detail: "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, errorResponse{Detail: "Prompt is required"})
		return
	}

	answer, err := h.chat.Chat(r.Context(), req.Prompt)
	if err != nil {
		status, resp := chatErrorResponse(err)
		hlog.FromRequest(r).Error().Err(err).Str("step", resp.Step).Str("tool", resp.Tool).Msg("Chat failed")
		writeError(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Role: llm.RoleAssistant, Content: answer.Content})
}

func chatErrorResponse(err error) (int, errorResponse) {
	var cfgErr *llm.ConfigurationError
	var upstream *core.UpstreamError
	var notFound *tools.ToolNotFoundError
	var execErr *tools.ToolExecutionError
	var maxTurns *core.MaxTurnsError

	switch {
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError, errorResponse{Detail: cfgErr.Error(), Step: "configuration"}
	case errors.As(err, &notFound):
		return http.StatusInternalServerError, errorResponse{Detail: notFound.Error(), Step: "tool", Tool: notFound.Name}
	case errors.As(err, &execErr):
		return http.StatusInternalServerError, errorResponse{Detail: execErr.Error(), Step: "tool", Tool: execErr.Name}
	case errors.As(err, &maxTurns):
		return http.StatusGatewayTimeout, errorResponse{Detail: maxTurns.Error(), Step: "max_turns"}
	case errors.As(err, &upstream):
		return http.StatusInternalServerError, errorResponse{Detail: upstream.Error(), Step: upstream.Step}
	default:
		return http.StatusInternalServerError, errorResponse{Detail: err.Error()}
	}
}
