package handlers

import (
	"encoding/json"
	"net/http"

	"storyweaver/internal/infra"
	"storyweaver/internal/middleware"
	"storyweaver/internal/session"
)

// App bundles the dependencies the HTTP handlers need: the one live session
// and a logger.
type App struct {
	Session *session.Session
	Logger  *infra.Logger
}

func NewApp(sess *session.Session, logger *infra.Logger) *App {
	return &App{Session: sess, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// User-facing error messages per locale, keyed by the session's stable error
// codes. The session stores the English default; handlers re-render by code
// so the same failure localizes per request.
var errorMessages = map[string]map[session.ErrorCode]string{
	"en": {
		session.ErrorStoryGeneration: "Failed to weave the story. Please try again.",
		session.ErrorExtension:       "The narrative thread broke. Could not extend the story.",
		session.ErrorEdit:            "Failed to edit image. The AI might be busy.",
	},
	"id": {
		session.ErrorStoryGeneration: "Gagal merangkai cerita. Silakan coba lagi.",
		session.ErrorExtension:       "Benang cerita terputus. Tidak dapat melanjutkan cerita.",
		session.ErrorEdit:            "Gagal menyunting gambar. AI mungkin sedang sibuk.",
	},
}

func localizeError(err *session.UserError, locale string) *session.UserError {
	if err == nil {
		return nil
	}
	msgs, ok := errorMessages[locale]
	if !ok {
		return err
	}
	if msg, ok := msgs[err.Code]; ok {
		return &session.UserError{Code: err.Code, Message: msg}
	}
	return err
}

func localeFor(r *http.Request) string {
	return middleware.LocaleFromContext(r.Context())
}
