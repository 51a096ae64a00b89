package story

// Scene is one narrative unit: its own text, the prompt used to illustrate
// it, and (once generated) the illustration itself as a data URL.
type Scene struct {
	ID                string `json:"id"`
	Text              string `json:"text"`
	ImagePrompt       string `json:"image_prompt"`
	ImageURL          string `json:"image_url,omitempty"`
	IsGeneratingImage bool   `json:"is_generating_image"`
}

// Story is a title plus an ordered sequence of scenes. Scene order is
// narrative order; scenes are appended on extension and never reordered.
type Story struct {
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes"`
}

// Clone returns an independent copy of the story so snapshots handed to
// callers never alias the live scene slice.
func (s *Story) Clone() *Story {
	if s == nil {
		return nil
	}
	out := &Story{Title: s.Title, Scenes: make([]Scene, len(s.Scenes))}
	copy(out.Scenes, s.Scenes)
	return out
}

// Scene returns a pointer to the scene with the given id, or nil when no
// such scene exists in the story.
func (s *Story) Scene(id string) *Scene {
	if s == nil {
		return nil
	}
	for i := range s.Scenes {
		if s.Scenes[i].ID == id {
			return &s.Scenes[i]
		}
	}
	return nil
}
