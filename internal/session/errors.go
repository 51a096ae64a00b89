package session

import "errors"

// Guard failures returned synchronously to the caller. None of these touch
// the user-visible error slot except ErrNoImage, which is a real edit
// failure rather than a rejected request.
var (
	ErrBlankInput        = errors.New("blank input")
	ErrStoryInFlight     = errors.New("story generation already in flight")
	ErrExtensionInFlight = errors.New("story extension already in flight")
	ErrNoStory           = errors.New("no story to extend")
	ErrSceneNotFound     = errors.New("scene not found")
	ErrSceneBusy         = errors.New("scene image request already in flight")
	ErrNoImage           = errors.New("scene has no image to edit")
)

// ErrorCode identifies the action that produced the user-visible error. The
// code is stable so the presentation layer can localize the message.
type ErrorCode string

const (
	ErrorStoryGeneration ErrorCode = "story_generation_failed"
	ErrorExtension       ErrorCode = "extension_failed"
	ErrorEdit            ErrorCode = "edit_failed"
)

// UserError is the value held in the session's single error slot.
type UserError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

var defaultMessages = map[ErrorCode]string{
	ErrorStoryGeneration: "Failed to weave the story. Please try again.",
	ErrorExtension:       "The narrative thread broke. Could not extend the story.",
	ErrorEdit:            "Failed to edit image. The AI might be busy.",
}

func newUserError(code ErrorCode) *UserError {
	return &UserError{Code: code, Message: defaultMessages[code]}
}
