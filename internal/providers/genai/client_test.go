package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"storyweaver/internal/story"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:     "test-key",
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func textResponse(t *testing.T, payload any) *http.Response {
	t.Helper()
	text, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	body := geminiGenerateContentResponse{
		Candidates: []geminiCandidate{{
			Content: geminiContent{Parts: []geminiPart{{Text: string(text)}}},
		}},
	}
	return jsonResponse(t, http.StatusOK, body)
}

func jsonResponse(t *testing.T, status int, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func TestGenerateStoryStructureParsesResponse(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if !strings.Contains(r.URL.Path, "gemini-3-pro-preview") {
			t.Errorf("structure request hit %q, want text model path", r.URL.Path)
		}
		return textResponse(t, structurePayload{
			Title: "The Dragon's Gift",
			Scenes: []scenePayload{
				{Text: "one", ImagePrompt: "a dragon"},
				{Text: "two", ImagePrompt: "a gift"},
				{Text: "three", ImagePrompt: "a farewell"},
			},
		}), nil
	})

	st, err := client.GenerateStoryStructure(context.Background(), "A friendly dragon")
	if err != nil {
		t.Fatalf("GenerateStoryStructure returned error: %v", err)
	}
	if st.Title != "The Dragon's Gift" {
		t.Fatalf("Title = %q, want %q", st.Title, "The Dragon's Gift")
	}
	if len(st.Scenes) != 3 {
		t.Fatalf("scene count = %d, want 3", len(st.Scenes))
	}
	seen := map[string]bool{}
	for _, sc := range st.Scenes {
		if sc.ID == "" || seen[sc.ID] {
			t.Fatalf("scene id %q missing or duplicated", sc.ID)
		}
		seen[sc.ID] = true
		if sc.IsGeneratingImage {
			t.Fatal("new scene flagged as generating")
		}
		if sc.ImageURL != "" {
			t.Fatal("new scene has an image url")
		}
	}
}

func TestGenerateStoryStructureRequestsStructuredJSON(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		var req geminiGenerateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.GenerationConfig == nil || req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Errorf("generationConfig = %+v, want application/json response", req.GenerationConfig)
		}
		if req.GenerationConfig.ResponseSchema == nil || req.GenerationConfig.ResponseSchema.Properties["scenes"] == nil {
			t.Error("response schema missing scenes property")
		}
		if !strings.Contains(req.Contents[0].Parts[0].Text, "A friendly dragon") {
			t.Error("prompt not embedded in request text")
		}
		return textResponse(t, structurePayload{
			Title:  "T",
			Scenes: []scenePayload{{Text: "a", ImagePrompt: "b"}},
		}), nil
	})

	if _, err := client.GenerateStoryStructure(context.Background(), "A friendly dragon"); err != nil {
		t.Fatalf("GenerateStoryStructure returned error: %v", err)
	}
}

func TestGenerateStoryStructureFailures(t *testing.T) {
	cases := []struct {
		name string
		rt   roundTripFunc
	}{
		{
			name: "transport error",
			rt: func(r *http.Request) (*http.Response, error) {
				return nil, errors.New("connection refused")
			},
		},
		{
			name: "http error status",
			rt: func(r *http.Request) (*http.Response, error) {
				return jsonResponse(t, http.StatusServiceUnavailable, geminiErrorResponse{}), nil
			},
		},
		{
			name: "malformed json payload",
			rt: func(r *http.Request) (*http.Response, error) {
				body := geminiGenerateContentResponse{
					Candidates: []geminiCandidate{{
						Content: geminiContent{Parts: []geminiPart{{Text: "{not json"}}},
					}},
				}
				return jsonResponse(t, http.StatusOK, body), nil
			},
		},
		{
			name: "missing title",
			rt: func(r *http.Request) (*http.Response, error) {
				return textResponse(t, structurePayload{Scenes: []scenePayload{{Text: "a", ImagePrompt: "b"}}}), nil
			},
		},
		{
			name: "empty candidates",
			rt: func(r *http.Request) (*http.Response, error) {
				return jsonResponse(t, http.StatusOK, geminiGenerateContentResponse{}), nil
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.rt)
			_, err := client.GenerateStoryStructure(context.Background(), "prompt")
			var genErr *GenerationError
			if !errors.As(err, &genErr) {
				t.Fatalf("error = %v, want *GenerationError", err)
			}
		})
	}
}

func TestExtendStorySerializesPriorScenes(t *testing.T) {
	st := &story.Story{
		Title: "The Long Road",
		Scenes: []story.Scene{
			{ID: "1", Text: "first steps"},
			{ID: "2", Text: "a stranger appears"},
		},
	}

	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		var req geminiGenerateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		text := req.Contents[0].Parts[0].Text
		for _, want := range []string{"The Long Road", "Scene 1: first steps", "Scene 2: a stranger appears", "take a dark turn"} {
			if !strings.Contains(text, want) {
				t.Errorf("extension prompt missing %q", want)
			}
		}
		return textResponse(t, extensionPayload{NewScenes: []scenePayload{
			{Text: "three", ImagePrompt: "shadow"},
			{Text: "four", ImagePrompt: "dawn"},
		}}), nil
	})

	scenes, err := client.ExtendStory(context.Background(), st, "take a dark turn")
	if err != nil {
		t.Fatalf("ExtendStory returned error: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("scene count = %d, want 2", len(scenes))
	}
	for _, sc := range scenes {
		if sc.ID == "" || sc.ID == "1" || sc.ID == "2" {
			t.Fatalf("new scene id %q collides with existing ids", sc.ID)
		}
	}
}

func TestExtendStoryFailureReturnsNoScenes(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return textResponse(t, extensionPayload{}), nil
	})

	scenes, err := client.ExtendStory(context.Background(), &story.Story{Title: "T"}, "go on")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %v, want *GenerationError", err)
	}
	if scenes != nil {
		t.Fatalf("scenes = %v, want nil on failure", scenes)
	}
}

func TestGenerateImageExtractsFirstInlinePart(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		var req geminiGenerateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.GenerationConfig == nil || req.GenerationConfig.ImageConfig == nil || req.GenerationConfig.ImageConfig.AspectRatio != "16:9" {
			t.Errorf("generationConfig = %+v, want 16:9 aspect ratio", req.GenerationConfig)
		}
		body := geminiGenerateContentResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{Parts: []geminiPart{
					{Text: "here is your illustration"},
					{InlineData: &geminiInlineData{MimeType: "image/png", Data: "Zmlyc3Q="}},
					{InlineData: &geminiInlineData{MimeType: "image/png", Data: "c2Vjb25k"}},
				}},
			}},
		}
		return jsonResponse(t, http.StatusOK, body), nil
	})

	img, err := client.GenerateImage(context.Background(), "a quiet harbor at dusk")
	if err != nil {
		t.Fatalf("GenerateImage returned error: %v", err)
	}
	if img.MIME != "image/png" || img.Data != "Zmlyc3Q=" {
		t.Fatalf("image = %+v, want first inline part", img)
	}
}

func TestGenerateImageNoInlineData(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		body := geminiGenerateContentResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{Parts: []geminiPart{{Text: "sorry, text only"}}},
			}},
		}
		return jsonResponse(t, http.StatusOK, body), nil
	})

	_, err := client.GenerateImage(context.Background(), "anything")
	if !errors.Is(err, ErrNoImageProduced) {
		t.Fatalf("error = %v, want ErrNoImageProduced", err)
	}
}

func TestEditImageSendsOriginalImageAndInstruction(t *testing.T) {
	original := story.EncodedImage{MIME: "image/jpeg", Data: "b3JpZ2luYWw="}

	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		var req geminiGenerateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		parts := req.Contents[0].Parts
		if len(parts) != 2 || parts[0].InlineData == nil {
			t.Fatalf("parts = %+v, want inline image then instruction", parts)
		}
		if parts[0].InlineData.MimeType != original.MIME || parts[0].InlineData.Data != original.Data {
			t.Errorf("inline data = %+v, want the original image", parts[0].InlineData)
		}
		if !strings.Contains(parts[1].Text, "add a sunset") {
			t.Errorf("instruction missing from %q", parts[1].Text)
		}
		body := geminiGenerateContentResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{Parts: []geminiPart{
					{InlineData: &geminiInlineData{MimeType: "image/jpeg", Data: "ZWRpdGVk"}},
				}},
			}},
		}
		return jsonResponse(t, http.StatusOK, body), nil
	})

	img, err := client.EditImage(context.Background(), original.DataURL(), "add a sunset")
	if err != nil {
		t.Fatalf("EditImage returned error: %v", err)
	}
	if img.Data != "ZWRpdGVk" {
		t.Fatalf("edited image data = %q, want %q", img.Data, "ZWRpdGVk")
	}
}

func TestEditImageRejectsMalformedPayloadBeforeNetwork(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("should never be reached")
	})

	for _, malformed := range []string{
		"not-a-data-url",
		"data:text/plain;base64,aGVsbG8=",
		"data:image/png;base64,",
	} {
		if _, err := client.EditImage(context.Background(), malformed, "fix it"); !errors.Is(err, story.ErrInvalidImageFormat) {
			t.Fatalf("EditImage(%q) error = %v, want ErrInvalidImageFormat", malformed, err)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("transport called %d times for malformed input, want 0", calls.Load())
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatal("NewClient accepted an empty API key")
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Options{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if client.baseURL != defaultBaseURL {
		t.Fatalf("baseURL = %q, want default", client.baseURL)
	}
	if client.textModel != defaultTextModel || client.imageModel != defaultImageModel {
		t.Fatalf("models = %q/%q, want defaults", client.textModel, client.imageModel)
	}
	if client.limiter != nil {
		t.Fatal("limiter configured without RequestsPerMinute")
	}
}
