package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storyweaver/internal/session"
)

type startStoryRequest struct {
	Prompt string `json:"prompt"`
}

type instructionRequest struct {
	Instruction string `json:"instruction"`
}

type acceptedResponse struct {
	Status string `json:"status"`
}

// GetStory returns a snapshot of the live story and the busy flags. The
// client polls this while generation is in flight.
func (a *App) GetStory(w http.ResponseWriter, r *http.Request) {
	snap := a.Session.Snapshot()
	snap.Error = localizeError(snap.Error, localeFor(r))
	a.json(w, http.StatusOK, snap)
}

// StartStory discards the current story and begins generating a new one.
func (a *App) StartStory(w http.ResponseWriter, r *http.Request) {
	var req startStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	switch err := a.Session.StartStory(r.Context(), req.Prompt); {
	case err == nil:
		a.json(w, http.StatusAccepted, acceptedResponse{Status: "generating"})
	case errors.Is(err, session.ErrBlankInput):
		a.error(w, http.StatusUnprocessableEntity, "blank_prompt", "prompt must not be empty")
	case errors.Is(err, session.ErrStoryInFlight):
		a.error(w, http.StatusConflict, "story_in_flight", "a story is already being generated")
	default:
		a.Logger.Error().Err(err).Msg("handlers: start story")
		a.error(w, http.StatusInternalServerError, "internal", "unexpected error")
	}
}

// ExtendStory appends two more scenes to the current story.
func (a *App) ExtendStory(w http.ResponseWriter, r *http.Request) {
	var req instructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	switch err := a.Session.ExtendStory(r.Context(), req.Instruction); {
	case err == nil:
		a.json(w, http.StatusAccepted, acceptedResponse{Status: "extending"})
	case errors.Is(err, session.ErrBlankInput):
		a.error(w, http.StatusUnprocessableEntity, "blank_instruction", "instruction must not be empty")
	case errors.Is(err, session.ErrNoStory):
		a.error(w, http.StatusNotFound, "no_story", "there is no story to extend")
	case errors.Is(err, session.ErrExtensionInFlight):
		a.error(w, http.StatusConflict, "extension_in_flight", "an extension is already being generated")
	default:
		a.Logger.Error().Err(err).Msg("handlers: extend story")
		a.error(w, http.StatusInternalServerError, "internal", "unexpected error")
	}
}

// EditSceneImage reworks one scene's illustration in place.
func (a *App) EditSceneImage(w http.ResponseWriter, r *http.Request) {
	sceneID := chi.URLParam(r, "scene_id")
	var req instructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	switch err := a.Session.EditSceneImage(r.Context(), sceneID, req.Instruction); {
	case err == nil:
		a.json(w, http.StatusAccepted, acceptedResponse{Status: "editing"})
	case errors.Is(err, session.ErrSceneNotFound):
		a.error(w, http.StatusNotFound, "scene_not_found", "no such scene")
	case errors.Is(err, session.ErrSceneBusy):
		a.error(w, http.StatusConflict, "scene_busy", "an image request for this scene is already in flight")
	case errors.Is(err, session.ErrNoImage):
		msg := localizeError(&session.UserError{Code: session.ErrorEdit}, localeFor(r)).Message
		a.error(w, http.StatusUnprocessableEntity, "no_image", msg)
	default:
		a.Logger.Error().Err(err).Msg("handlers: edit scene image")
		a.error(w, http.StatusInternalServerError, "internal", "unexpected error")
	}
}

// StartOver discards the story and the prompt. In-flight generation is left
// to finish and its results are dropped.
func (a *App) StartOver(w http.ResponseWriter, r *http.Request) {
	a.Session.StartOver()
	w.WriteHeader(http.StatusNoContent)
}

// DismissError clears the user-visible error slot.
func (a *App) DismissError(w http.ResponseWriter, r *http.Request) {
	a.Session.DismissError()
	w.WriteHeader(http.StatusNoContent)
}
