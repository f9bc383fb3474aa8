package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dreamtales/dreamtales-api/internal/models"
)

// Provider is the external text-generation dependency: one free-text
// instruction in, free text out. Transport failures and provider error
// statuses surface as errors; the content of a successful response is
// untrusted and handled by the decode tiers below.
type Provider interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// DecodeTier records which decoding strategy produced a StoryText, so both
// tests and operators can tell a clean provider response from a salvaged one.
type DecodeTier int

const (
	// DecodeJSON: the response was the requested well-formed JSON object.
	DecodeJSON DecodeTier = iota
	// DecodeRecovered: malformed JSON, but the content was extracted by
	// pattern matching.
	DecodeRecovered
	// DecodeRaw: nothing recognizable; default title, raw text as content.
	DecodeRaw
)

func (t DecodeTier) String() string {
	switch t {
	case DecodeJSON:
		return "json"
	case DecodeRecovered:
		return "recovered"
	case DecodeRaw:
		return "raw"
	}
	return "unknown"
}

type StoryText struct {
	Title   string
	Content string
	Tier    DecodeTier
}

const synthesizeMaxTokens = 1500

// Synthesizer turns a validated generation request into story text: it builds
// the provider instruction, invokes the provider, and decodes the response
// defensively so a cosmetic formatting slip never becomes a hard failure.
type Synthesizer struct {
	provider Provider
}

func NewSynthesizer(provider Provider) *Synthesizer {
	return &Synthesizer{provider: provider}
}

func (s *Synthesizer) Synthesize(ctx context.Context, req models.GenerateStoryRequest) (*StoryText, error) {
	raw, err := s.provider.Complete(ctx, buildPrompt(req), synthesizeMaxTokens)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("provider returned an empty response")
	}

	return decodeStory(raw, req.ChildName), nil
}

func buildPrompt(req models.GenerateStoryRequest) string {
	langName, ok := models.LanguageNames[req.Language]
	if !ok {
		langName = "French"
	}

	return fmt.Sprintf(`You are a talented children's book author. Write a magical, engaging bedtime story entirely in %[1]s.

Story requirements:
- The main hero/heroine is a child named "%[2]s", aged %[3]d years old
- Theme: %[4]s
- Language: %[1]s (VERY IMPORTANT: the entire story must be written in %[1]s)
- Length: 400-600 words
- Tone: warm, magical, age-appropriate for a %[3]d-year-old
- Structure: beginning (introduce hero and setting), middle (exciting adventure/challenge), end (happy resolution with a gentle moral lesson)
- The child "%[2]s" must be the central hero who solves the problem
- Include vivid, imaginative descriptions
- End with a peaceful, sleep-inducing conclusion

Respond ONLY with a valid JSON object in this exact format (no markdown, no extra text):
{
  "title": "The story title in %[1]s",
  "content": "The full story text in %[1]s, with paragraphs separated by \n\n"
}`, langName, req.ChildName, req.ChildAge, req.Theme)
}

var (
	titlePattern   = regexp.MustCompile(`"title"\s*:\s*"([^"]+)"`)
	contentPattern = regexp.MustCompile(`(?s)"content"\s*:\s*"(.+?)"\s*\}`)
)

// decodeStory never fails for non-empty input. Tier 1 is a strict JSON parse,
// tier 2 salvages the two fields by pattern matching, tier 3 falls back to a
// default title and the raw text so the caller always gets usable content.
func decodeStory(raw, childName string) *StoryText {
	var parsed struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil && parsed.Title != "" && parsed.Content != "" {
		return &StoryText{Title: parsed.Title, Content: parsed.Content, Tier: DecodeJSON}
	}

	title := ""
	if m := titlePattern.FindStringSubmatch(raw); m != nil {
		title = m[1]
	}

	if m := contentPattern.FindStringSubmatch(raw); m != nil {
		if title == "" {
			title = defaultTitle(childName)
		}
		content := strings.ReplaceAll(m[1], `\n`, "\n")
		return &StoryText{Title: title, Content: content, Tier: DecodeRecovered}
	}

	if title == "" {
		title = defaultTitle(childName)
	}
	return &StoryText{Title: title, Content: raw, Tier: DecodeRaw}
}

func defaultTitle(childName string) string {
	return "The Adventure of " + childName
}
