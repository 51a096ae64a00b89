package session

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"storyweaver/internal/infra"
	"storyweaver/internal/story"
)

// Generator is the generation-service contract the session drives. The real
// implementation lives in providers/genai; tests substitute fakes.
type Generator interface {
	GenerateStoryStructure(ctx context.Context, prompt string) (*story.Story, error)
	ExtendStory(ctx context.Context, st *story.Story, instruction string) ([]story.Scene, error)
	GenerateImage(ctx context.Context, imagePrompt string) (story.EncodedImage, error)
	EditImage(ctx context.Context, imageURL, instruction string) (story.EncodedImage, error)
}

// Snapshot is a point-in-time copy of the session state handed to the
// presentation layer. The story never aliases live state.
type Snapshot struct {
	Prompt          string       `json:"prompt,omitempty"`
	Story           *story.Story `json:"story"`
	GeneratingStory bool         `json:"generating_story"`
	ExtendingStory  bool         `json:"extending_story"`
	Error           *UserError   `json:"error,omitempty"`
}

// Session owns the single live story and sequences generation against it.
// All state transitions funnel through one mutex; in-flight requests are
// never cancelled, their completions are simply dropped when the story they
// were issued against is gone.
type Session struct {
	gen    Generator
	logger *infra.Logger

	// Bounds concurrent image requests across fan-outs. Nil means unbounded.
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu         sync.Mutex
	prompt     string
	st         *story.Story
	generating bool
	extending  bool
	lastError  *UserError
	// epoch increments whenever the story slot is replaced or cleared, so
	// structure and extension completions can tell their story is stale.
	epoch uint64
}

// New constructs a session around the given generator. imageConcurrency
// bounds simultaneous image requests; values <= 0 leave them unbounded.
func New(gen Generator, logger *infra.Logger, imageConcurrency int) *Session {
	s := &Session{gen: gen, logger: logger}
	if imageConcurrency > 0 {
		s.sem = semaphore.NewWeighted(int64(imageConcurrency))
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errCopy *UserError
	if s.lastError != nil {
		e := *s.lastError
		errCopy = &e
	}
	return Snapshot{
		Prompt:          s.prompt,
		Story:           s.st.Clone(),
		GeneratingStory: s.generating,
		ExtendingStory:  s.extending,
		Error:           errCopy,
	}
}

// Wait blocks until all in-flight generation work has completed. Used for
// graceful shutdown; tests use it to observe fan-out results.
func (s *Session) Wait() {
	s.wg.Wait()
}

// StartStory discards any current story and generates a new one from the
// prompt, then fans out an image request per scene. Blank prompts are a pure
// no-op and in-flight generation rejects the request; neither touches state.
func (s *Session) StartStory(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrBlankInput
	}

	s.mu.Lock()
	if s.generating {
		s.mu.Unlock()
		return ErrStoryInFlight
	}
	s.generating = true
	s.st = nil
	s.prompt = prompt
	s.lastError = nil
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	// Generation outlives the triggering request.
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		st, err := s.gen.GenerateStoryStructure(bg, prompt)

		s.mu.Lock()
		s.generating = false
		if err != nil {
			s.lastError = newUserError(ErrorStoryGeneration)
			s.mu.Unlock()
			s.logger.Warn().Err(err).Msg("session: story generation failed")
			return
		}
		if s.epoch != epoch {
			s.mu.Unlock()
			s.logger.Debug().Msg("session: dropping stale story structure")
			return
		}
		s.st = st
		scenes := make([]story.Scene, len(st.Scenes))
		copy(scenes, st.Scenes)
		s.mu.Unlock()

		s.logger.Info().Str("title", st.Title).Int("scenes", len(scenes)).Msg("session: story installed")
		for _, sc := range scenes {
			s.generateSceneImage(bg, sc.ID, sc.ImagePrompt)
		}
	}()
	return nil
}

// ExtendStory appends model-continued scenes to the current story and fans
// out image generation for exactly the new scenes.
func (s *Session) ExtendStory(ctx context.Context, instruction string) error {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return ErrBlankInput
	}

	s.mu.Lock()
	if s.st == nil {
		s.mu.Unlock()
		return ErrNoStory
	}
	if s.extending {
		s.mu.Unlock()
		return ErrExtensionInFlight
	}
	s.extending = true
	s.lastError = nil
	epoch := s.epoch
	snapshot := s.st.Clone()
	s.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		scenes, err := s.gen.ExtendStory(bg, snapshot, instruction)

		s.mu.Lock()
		s.extending = false
		if err != nil {
			s.lastError = newUserError(ErrorExtension)
			s.mu.Unlock()
			s.logger.Warn().Err(err).Msg("session: story extension failed")
			return
		}
		if s.epoch != epoch || s.st == nil {
			s.mu.Unlock()
			s.logger.Debug().Msg("session: dropping stale story extension")
			return
		}
		s.st.Scenes = append(s.st.Scenes, scenes...)
		s.mu.Unlock()

		s.logger.Info().Int("scenes", len(scenes)).Msg("session: story extended")
		for _, sc := range scenes {
			s.generateSceneImage(bg, sc.ID, sc.ImagePrompt)
		}
	}()
	return nil
}

// EditSceneImage replaces one scene's illustration according to the
// instruction. The scene must exist, hold an image already, and have no
// image request in flight; a missing image is a real failure and lands in
// the error slot, the other guards just reject the request.
func (s *Session) EditSceneImage(ctx context.Context, sceneID, instruction string) error {
	s.mu.Lock()
	sc := s.st.Scene(sceneID)
	if sc == nil {
		s.mu.Unlock()
		return ErrSceneNotFound
	}
	if sc.IsGeneratingImage {
		s.mu.Unlock()
		return ErrSceneBusy
	}
	if sc.ImageURL == "" {
		s.lastError = newUserError(ErrorEdit)
		s.mu.Unlock()
		return ErrNoImage
	}
	sc.IsGeneratingImage = true
	imageURL := sc.ImageURL
	s.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		img, err := s.gen.EditImage(bg, imageURL, instruction)

		s.mu.Lock()
		defer s.mu.Unlock()
		sc := s.st.Scene(sceneID)
		if sc == nil {
			s.logger.Debug().Str("scene_id", sceneID).Msg("session: dropping stale image edit")
			return
		}
		sc.IsGeneratingImage = false
		if err != nil {
			s.lastError = newUserError(ErrorEdit)
			s.logger.Warn().Err(err).Str("scene_id", sceneID).Msg("session: image edit failed")
			return
		}
		sc.ImageURL = img.DataURL()
	}()
	return nil
}

// StartOver clears the story, the prompt, and the error slot. In-flight
// requests keep running; their completions find no matching scene and are
// absorbed.
func (s *Session) StartOver() {
	s.mu.Lock()
	s.st = nil
	s.prompt = ""
	s.lastError = nil
	s.epoch++
	s.mu.Unlock()
	s.logger.Info().Msg("session: story discarded")
}

// DismissError clears the user-visible error slot.
func (s *Session) DismissError() {
	s.mu.Lock()
	s.lastError = nil
	s.mu.Unlock()
}

// generateSceneImage marks the scene in flight and requests its
// illustration. Completion applies to whichever story is current: a scene id
// that no longer resolves means the story was reset and the result is
// dropped. Failures clear the flag and leave any prior image untouched; only
// story, extension, and edit failures reach the error slot.
func (s *Session) generateSceneImage(ctx context.Context, sceneID, imagePrompt string) {
	s.mu.Lock()
	sc := s.st.Scene(sceneID)
	if sc == nil {
		s.mu.Unlock()
		return
	}
	sc.IsGeneratingImage = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				s.clearSceneFlag(sceneID)
				return
			}
			defer s.sem.Release(1)
		}

		img, err := s.gen.GenerateImage(ctx, imagePrompt)

		s.mu.Lock()
		defer s.mu.Unlock()
		sc := s.st.Scene(sceneID)
		if sc == nil {
			s.logger.Debug().Str("scene_id", sceneID).Msg("session: dropping stale image result")
			return
		}
		sc.IsGeneratingImage = false
		if err != nil {
			s.logger.Warn().Err(err).Str("scene_id", sceneID).Msg("session: image generation failed")
			return
		}
		sc.ImageURL = img.DataURL()
	}()
}

func (s *Session) clearSceneFlag(sceneID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc := s.st.Scene(sceneID); sc != nil {
		sc.IsGeneratingImage = false
	}
}
