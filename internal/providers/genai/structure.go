package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"storyweaver/internal/story"
)

type scenePayload struct {
	Text        string `json:"text"`
	ImagePrompt string `json:"imagePrompt"`
}

type structurePayload struct {
	Title  string         `json:"title"`
	Scenes []scenePayload `json:"scenes"`
}

type extensionPayload struct {
	NewScenes []scenePayload `json:"newScenes"`
}

var sceneSchema = &geminiSchema{
	Type: "OBJECT",
	Properties: map[string]*geminiSchema{
		"text":        {Type: "STRING"},
		"imagePrompt": {Type: "STRING"},
	},
	Required: []string{"text", "imagePrompt"},
}

var structureSchema = &geminiSchema{
	Type: "OBJECT",
	Properties: map[string]*geminiSchema{
		"title":  {Type: "STRING"},
		"scenes": {Type: "ARRAY", Items: sceneSchema},
	},
	Required: []string{"title", "scenes"},
}

var extensionSchema = &geminiSchema{
	Type: "OBJECT",
	Properties: map[string]*geminiSchema{
		"newScenes": {Type: "ARRAY", Items: sceneSchema},
	},
	Required: []string{"newScenes"},
}

// GenerateStoryStructure asks the text model for a titled three-scene story
// built from the user prompt. Each returned scene gets a fresh unique id and
// starts with no illustration.
func (c *Client) GenerateStoryStructure(ctx context.Context, prompt string) (*story.Story, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildStructurePrompt(prompt)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:   1,
			ResponseMimeType: "application/json",
			ResponseSchema:   structureSchema,
		},
	}

	var resp geminiGenerateContentResponse
	if err := c.invoke(ctx, c.textModel, payload, &resp); err != nil {
		return nil, &GenerationError{Op: "story structure", Err: err}
	}

	parsed, err := parseStructured[structurePayload](resp)
	if err != nil {
		return nil, &GenerationError{Op: "story structure", Err: err}
	}
	if parsed.Title == "" || len(parsed.Scenes) == 0 {
		return nil, &GenerationError{Op: "story structure", Err: errors.New("incomplete structure")}
	}

	st := &story.Story{Title: parsed.Title, Scenes: newScenes(parsed.Scenes)}

	c.logger.Debug().
		Str("model", c.textModel).
		Str("title", st.Title).
		Int("scenes", len(st.Scenes)).
		Msg("genai: generated story structure")

	return st, nil
}

// ExtendStory asks the text model for two more scenes that continue the
// story. The full story so far is serialized in order into the prompt as
// context. New scenes get fresh ids distinct from all existing ones.
func (c *Client) ExtendStory(ctx context.Context, st *story.Story, instruction string) ([]story.Scene, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildExtensionPrompt(st, instruction)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:   1,
			ResponseMimeType: "application/json",
			ResponseSchema:   extensionSchema,
		},
	}

	var resp geminiGenerateContentResponse
	if err := c.invoke(ctx, c.textModel, payload, &resp); err != nil {
		return nil, &GenerationError{Op: "story extension", Err: err}
	}

	parsed, err := parseStructured[extensionPayload](resp)
	if err != nil {
		return nil, &GenerationError{Op: "story extension", Err: err}
	}
	if len(parsed.NewScenes) == 0 {
		return nil, &GenerationError{Op: "story extension", Err: errors.New("no scenes returned")}
	}

	scenes := newScenes(parsed.NewScenes)

	c.logger.Debug().
		Str("model", c.textModel).
		Int("scenes", len(scenes)).
		Msg("genai: extended story")

	return scenes, nil
}

func parseStructured[T any](resp geminiGenerateContentResponse) (T, error) {
	var parsed T
	text := firstText(resp)
	if text == "" {
		return parsed, errors.New("empty response")
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return parsed, fmt.Errorf("parse structured response: %w", err)
	}
	return parsed, nil
}

func newScenes(payloads []scenePayload) []story.Scene {
	scenes := make([]story.Scene, 0, len(payloads))
	for _, p := range payloads {
		scenes = append(scenes, story.Scene{
			ID:          uuid.NewString(),
			Text:        p.Text,
			ImagePrompt: p.ImagePrompt,
		})
	}
	return scenes
}

func buildStructurePrompt(prompt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a creative short story based on this prompt: %q.\n", prompt)
	b.WriteString("The story should be divided into 3 distinct scenes.\n")
	b.WriteString("Provide a title and for each scene, provide the narrative text and a descriptive prompt for an image generator to illustrate that scene.")
	return b.String()
}

func buildExtensionPrompt(st *story.Story, instruction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are continuing a story titled %q.\n", st.Title)
	b.WriteString("The story so far:\n")
	for i, sc := range st.Scenes {
		fmt.Fprintf(&b, "Scene %d: %s\n", i+1, sc.Text)
	}
	fmt.Fprintf(&b, "\nThe user wants to add more to the story with this instruction: %q.\n", instruction)
	b.WriteString("Provide 2 more distinct scenes that naturally follow the current narrative and move the plot forward.\n")
	b.WriteString("For each scene, provide the narrative text and a descriptive prompt for an image generator.")
	return b.String()
}
