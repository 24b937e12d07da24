package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MimeLyc/srt-batch-translator/internal/termmap"
)

// ChatClient is the part of an LLM client a prompted translator needs.
type ChatClient interface {
	SimpleChat(ctx context.Context, prompt string, systemPrompt string) (string, error)
}

// ErrEmptyResponse is returned when the model answers with no content.
var ErrEmptyResponse = errors.New("empty translation response")

var englishNames = display.Languages(language.English)

// LLMOption configures NewLLMTranslateFunc.
type LLMOption func(*llmSettings)

type llmSettings struct {
	glossary termmap.TermMap
}

// WithGlossary pins translations of names and terms. Only the terms found
// in a batch are added to that batch's prompt.
func WithGlossary(glossary termmap.TermMap) LLMOption {
	return func(s *llmSettings) {
		s.glossary = glossary
	}
}

// NewLLMTranslateFunc returns a TranslateFunc that asks chat to translate a
// serialized SRT batch into target.
func NewLLMTranslateFunc(chat ChatClient, target language.Tag, opts ...LLMOption) TranslateFunc {
	var settings llmSettings
	for _, opt := range opts {
		opt(&settings)
	}

	basePrompt := buildSystemPrompt(target)
	return func(ctx context.Context, payload string) (string, error) {
		systemPrompt := basePrompt
		if len(settings.glossary) > 0 {
			matched := termmap.Match(settings.glossary, []string{payload}).Matched
			if len(matched) > 0 {
				systemPrompt += "\n\nUse these fixed translations for names and terms:\n" + matched.Prompt()
			}
		}

		content, err := chat.SimpleChat(ctx, payload, systemPrompt)
		if err != nil {
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		content = stripCodeFence(strings.TrimSpace(content))
		if content == "" {
			return "", ErrEmptyResponse
		}
		return content, nil
	}
}

// LanguageName renders target for humans and prompts, e.g. "Japanese (日本語)".
func LanguageName(target language.Tag) string {
	english := ""
	if englishNames != nil {
		english = englishNames.Name(target)
	}
	native := display.Self.Name(target)

	switch {
	case english == "" && native == "":
		return target.String()
	case english == "" || english == native:
		return native
	case native == "":
		return english
	default:
		return fmt.Sprintf("%s (%s)", english, native)
	}
}

func buildSystemPrompt(target language.Tag) string {
	var prompt strings.Builder
	prompt.WriteString("You are a subtitle translator. Translate the given SRT subtitle text to ")
	prompt.WriteString(LanguageName(target))
	prompt.WriteString(".\n")
	prompt.WriteString("IMPORTANT: Translate EACH subtitle entry independently, line by line. ")
	prompt.WriteString("Do NOT consider the overall context or try to make the subtitles flow together.\n")
	prompt.WriteString("Each numbered subtitle block should be translated on its own without reference to other blocks.\n")
	prompt.WriteString("Keep the exact same SRT format: number, timestamp, and translated text.\n")
	prompt.WriteString("Do NOT merge, split, reorder, or drop blocks.\n")
	prompt.WriteString("Return only the translated SRT text without any explanation.")
	return prompt.String()
}

// stripCodeFence removes a Markdown code fence wrapped around the whole
// response, which some models add despite instructions.
func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") || !strings.HasSuffix(content, "```") || len(content) < 6 {
		return content
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")
	// drop an optional language hint such as ```srt
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.ContainsAny(inner[:nl], " \t") {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}
