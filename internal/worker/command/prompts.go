package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuongbtq/verse-journal/internal/model"
	"google.golang.org/genai"
)

const (
	DefaultVoice    = "Charon"
	DefaultLanguage = "en-US"
)

func poemPrompt(j *model.Journal) string {
	return strings.Join([]string{
		fmt.Sprintf("I have a journal text with a maximum length of 5,000 characters: %q", j.Content),
		"",
		"From this journal, create a poem in English that:",
		fmt.Sprintf("1. Highlights the following topics: [%s].", strings.Join(j.Topics, ", ")),
		fmt.Sprintf("2. Conveys the following emotions: [%s].", strings.Join(j.Emotions, ", ")),
		"3. Is written in a free-verse style, with 3-4 stanzas, each containing 4-6 lines.",
		"4. Uses poetic language with vivid natural imagery and deep metaphors.",
		"5. Maintains a reflective and slightly melancholic tone.",
		"",
		"Do not alter the facts from the journal, but transform the narrative into a flowing, emotional poem. " +
			"Optionally, draw inspiration from the style of poets like Mary Oliver, focusing on simple yet profound language. " +
			"Ensure the poem feels natural and emotionally resonant.",
	}, "\n")
}

// poemSchema describes model.PoemContent to the provider
func poemSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title": {Type: genai.TypeString},
			"stanzas": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
			},
		},
		Required:         []string{"title", "stanzas"},
		PropertyOrdering: []string{"title", "stanzas"},
	}
}

func narrationPrompt(content model.PoemContent) (string, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return "", err
	}

	return strings.Join([]string{
		"Using the provided JSON data, generate a text-to-speech output that reads only the title and the stanzas of the poem exactly as they appear, " +
			"with no additional explanations, introductions, or commentary. Read the title first, followed by each stanza in sequence, " +
			"maintaining the original wording and structure. Ensure the output is clear and suitable for TTS, " +
			"with appropriate pauses between the title and each stanza.",
		"",
		"JSON Data:",
		string(data),
		"",
		"",
		"Output Format:",
		fmt.Sprintf("- Read the title: %q", content.Title),
		"- Pause briefly.",
		"- Read each stanza line by line, with a short pause between lines and a slightly longer pause between stanzas.",
		"- Do not add any extra text or commentary.",
	}, "\n"), nil
}
