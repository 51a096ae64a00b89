package genai

import (
	"errors"
	"fmt"
)

// ErrNoImageProduced reports a generateContent response that carried no
// inline image part.
var ErrNoImageProduced = errors.New("no image produced")

// GenerationError wraps a failed structure or extension request: transport
// errors, non-2xx statuses, and responses that cannot be parsed into the
// expected shape all surface as this kind.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
