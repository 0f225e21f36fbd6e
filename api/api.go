package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GetStream/nebula-chat/api/validator"
	"github.com/GetStream/nebula-chat/chat"
	"github.com/GetStream/nebula-chat/metrics"
)

// Headers set by the upstream identity provider.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// API provides the REST endpoints for the application.
type API struct {
	Logger *slog.Logger
	Chat   Chat
	Val    *validator.Validator
	// Checks are pinged by /healthz.
	Checks map[string]Pinger

	once sync.Once
	mux  *http.ServeMux
}

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.healthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /conversations", a.authed(a.listConversations))
	mux.HandleFunc("POST /conversations", a.authed(a.resolveConversation))
	mux.HandleFunc("POST /conversations/group", a.authed(a.createGroup))
	mux.HandleFunc("POST /conversations/bot", a.authed(a.startBotConversation))
	mux.HandleFunc("GET /conversations/{conversationID}/messages", a.authed(a.listMessages))
	mux.HandleFunc("POST /conversations/{conversationID}/messages", a.authed(a.createMessage))
	mux.HandleFunc("POST /conversations/{conversationID}/media", a.authed(a.createMedia))
	mux.HandleFunc("POST /conversations/{conversationID}/typing", a.authed(a.markTyping))
	mux.HandleFunc("POST /messages/{messageID}/reactions", a.authed(a.toggleReaction))
	mux.HandleFunc("POST /presence/logout", a.authed(a.logout))

	a.mux = mux
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	a.mux.ServeHTTP(rec, r)

	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
}

type ctxKey struct{}

// authed rejects requests without an identity and records activity for the
// rest.
func (a *API) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUserID)
		if userID == "" {
			a.respondError(w, http.StatusUnauthorized, errors.New("missing "+HeaderUserID), "Missing user identity")
			return
		}
		if err := a.Chat.TouchPresence(r.Context(), userID); err != nil {
			a.Logger.Error("Could not record activity", "user_id", userID, "error", err.Error())
		}
		a.Logger.Debug("Authenticated", "user_id", userID, "role", r.Header.Get(HeaderUserRole))
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	}
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", "error", err.Error())
	a.respond(w, status, response{Error: msg})
}

// respondChatError maps chat errors to a status. msg is used for unexpected
// failures so internals are not leaked.
func (a *API) respondChatError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		a.respondError(w, http.StatusBadRequest, err, err.Error())
	case errors.Is(err, chat.ErrForbidden):
		a.respondError(w, http.StatusForbidden, err, "Not a member of this conversation")
	case errors.Is(err, chat.ErrNotFound):
		a.respondError(w, http.StatusNotFound, err, "Not found")
	case errors.Is(err, chat.ErrConflict):
		a.respondError(w, http.StatusConflict, err, "Conflicting update, please retry")
	default:
		a.respondError(w, http.StatusInternalServerError, err, msg)
	}
}

func (a *API) validateBody(w http.ResponseWriter, s interface{}) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

// decodeBody decodes and validates the JSON request body into dst.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return false
	}

	if valid := a.validateBody(w, dst); !valid {
		return false
	}

	err = r.Body.Close()
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not close request body")
		return false
	}
	return true
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}

	res := response{Status: "ok"}
	status := http.StatusOK
	if len(a.Checks) > 0 {
		res.Checks = make(map[string]string, len(a.Checks))
	}
	for name, p := range a.Checks {
		if err := p.Ping(r.Context()); err != nil {
			a.Logger.Error("Health check failed", "check", name, "error", err.Error())
			res.Checks[name] = "unavailable"
			res.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}
	a.respond(w, status, res)
}

func (a *API) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := a.Chat.ListConversations(r.Context(), userID(r))
	if err != nil {
		a.respondChatError(w, err, "Could not list conversations")
		return
	}
	if convs == nil {
		convs = []chat.ConversationSummary{}
	}
	a.respond(w, http.StatusOK, conversationsResponse{Conversations: convs})
}

func (a *API) resolveConversation(w http.ResponseWriter, r *http.Request) {
	var body resolveRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	ref, err := a.Chat.ResolveDirect(r.Context(), userID(r), body.RecipientID)
	if err != nil {
		a.respondChatError(w, err, "Could not resolve conversation")
		return
	}
	a.respond(w, http.StatusOK, ref)
}

func (a *API) createGroup(w http.ResponseWriter, r *http.Request) {
	var body groupRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	ref, err := a.Chat.CreateGroup(r.Context(), userID(r), body.MemberIDs, body.Title)
	if err != nil {
		a.respondChatError(w, err, "Could not create group")
		return
	}
	a.respond(w, http.StatusCreated, ref)
}

func (a *API) startBotConversation(w http.ResponseWriter, r *http.Request) {
	ref, err := a.Chat.StartBotConversation(r.Context(), userID(r))
	if err != nil {
		a.respondChatError(w, err, "Could not start bot conversation")
		return
	}
	a.respond(w, http.StatusOK, ref)
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversationID")
	page, err := a.Chat.ListMessages(r.Context(), conversationID, userID(r))
	if err != nil {
		a.respondChatError(w, err, "Could not list messages")
		return
	}
	a.Logger.Info("Listed messages", "conversation_id", conversationID, "count", len(page.Messages))
	a.respond(w, http.StatusOK, page)
}

func (a *API) createMessage(w http.ResponseWriter, r *http.Request) {
	var body messageRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	msg, err := a.Chat.SendMessage(r.Context(), r.PathValue("conversationID"), userID(r), body.Content)
	if err != nil {
		a.respondChatError(w, err, "Could not send message")
		return
	}
	a.respond(w, http.StatusCreated, msg)
}

func (a *API) createMedia(w http.ResponseWriter, r *http.Request) {
	var body mediaRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	msg, err := a.Chat.SendMedia(r.Context(), r.PathValue("conversationID"), userID(r), body.MediaURL, chat.MessageType(body.Type))
	if err != nil {
		a.respondChatError(w, err, "Could not send media")
		return
	}
	a.respond(w, http.StatusCreated, msg)
}

func (a *API) markTyping(w http.ResponseWriter, r *http.Request) {
	if err := a.Chat.MarkTyping(r.Context(), r.PathValue("conversationID"), userID(r)); err != nil {
		a.respondChatError(w, err, "Could not mark typing")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) toggleReaction(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("messageID")
	var body reactionRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	status, err := a.Chat.ToggleReaction(r.Context(), messageID, userID(r), body.Reaction)
	if err != nil {
		a.respondChatError(w, err, "Could not toggle reaction for message "+messageID)
		return
	}
	a.respond(w, http.StatusOK, reactionResponse{Status: status})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.Chat.Logout(r.Context(), userID(r)); err != nil {
		a.respondChatError(w, err, "Could not log out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
