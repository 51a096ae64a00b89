package genai

import (
	"context"
	"fmt"

	"storyweaver/internal/story"
)

// GenerateImage requests one 16:9 illustration for the given descriptive
// prompt and returns the first inline image the model produced.
func (c *Client) GenerateImage(ctx context.Context, imagePrompt string) (story.EncodedImage, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: fmt.Sprintf("A high-quality illustration for: %s", imagePrompt)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			ImageConfig: &geminiImageConfig{AspectRatio: imageAspectRatio},
		},
	}

	var resp geminiGenerateContentResponse
	if err := c.invoke(ctx, c.imageModel, payload, &resp); err != nil {
		return story.EncodedImage{}, fmt.Errorf("generate image: %w", err)
	}

	img, ok := firstInlineImage(resp)
	if !ok {
		return story.EncodedImage{}, ErrNoImageProduced
	}

	c.logger.Debug().
		Str("model", c.imageModel).
		Str("mime", img.MIME).
		Msg("genai: generated scene image")

	return img, nil
}

// EditImage sends an existing illustration back to the model together with a
// modification instruction and returns the reworked image. The input must be
// a well-formed base64 image data URL; malformed payloads fail with
// story.ErrInvalidImageFormat before any network call.
func (c *Client) EditImage(ctx context.Context, imageURL, instruction string) (story.EncodedImage, error) {
	img, err := story.ParseDataURL(imageURL)
	if err != nil {
		return story.EncodedImage{}, err
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{MimeType: img.MIME, Data: img.Data}},
				{Text: fmt.Sprintf("Modify this image based on the following instruction: %s. Keep the core content but apply the requested changes.", instruction)},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{
			ImageConfig: &geminiImageConfig{AspectRatio: imageAspectRatio},
		},
	}

	var resp geminiGenerateContentResponse
	if err := c.invoke(ctx, c.imageModel, payload, &resp); err != nil {
		return story.EncodedImage{}, fmt.Errorf("edit image: %w", err)
	}

	edited, ok := firstInlineImage(resp)
	if !ok {
		return story.EncodedImage{}, ErrNoImageProduced
	}

	c.logger.Debug().
		Str("model", c.imageModel).
		Str("mime", edited.MIME).
		Msg("genai: edited scene image")

	return edited, nil
}

func firstInlineImage(resp geminiGenerateContentResponse) (story.EncodedImage, bool) {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				mime := part.InlineData.MimeType
				if mime == "" {
					mime = "image/png"
				}
				return story.EncodedImage{MIME: mime, Data: part.InlineData.Data}, true
			}
		}
	}
	return story.EncodedImage{}, false
}
