package summarizer

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"

	"github.com/z-wentao/tubenotes/pkg/models"
)

const DefaultPromptID = "summary"

const systemPrompt = "You are a helpful assistant that creates comprehensive, well-structured summaries of YouTube video content. Always format your responses in clean markdown."

// builtinPrompts are available even when the config defines none.
var builtinPrompts = map[string]string{
	"summary": `You are an assistant that extracts key information from YouTube video transcripts.

Video Title: {{.Title}}
Channel: {{.Channel}}
Description: {{.Description}}

Transcript: {{.Transcript}}

Please analyze this video and provide a comprehensive summary in the following format:

## Topics Covered
- List the main topics and subjects discussed in the video

## Key Workflows/Processes
- Describe any step-by-step processes, workflows, or procedures mentioned

## Important Concepts
- Define and explain key concepts, terms, or ideas presented

## Learnings/Takeaways
- List the main insights, lessons, or actionable takeaways

## Suggested Tags
- Provide 5-10 relevant tags for categorizing this content

Format your response in clean markdown with proper headings and bullet points. Focus on extracting the most valuable and actionable information from the video.`,

	"key-points": `Summarize the YouTube video "{{.Title}}" by {{.Channel}} as a short list of the most important points.

Description: {{.Description}}

Transcript: {{.Transcript}}

Respond in markdown with a "## Key Points" section of at most 10 bullets and a one-paragraph "## TL;DR".`,

	"study-notes": `Turn the following YouTube video into study notes.

Video Title: {{.Title}}
Channel: {{.Channel}}
Description: {{.Description}}

Transcript: {{.Transcript}}

Write markdown with these sections: "## Overview", "## Definitions", "## Detailed Notes", "## Review Questions" (5 questions with answers).`,
}

const titlePrompt = `Write one concise, descriptive title (at most 80 characters) for notes about this YouTube video. Reply with the title only, no quotes.

Original title: {{.Title}}
Channel: {{.Channel}}

Transcript excerpt: {{.Transcript}}`

var builtinTitleTemplate = template.Must(template.New("title").Parse(titlePrompt))

// promptData is what prompt templates can reference.
type promptData struct {
	Title       string
	Channel     string
	Description string
	Transcript  string
}

func newPromptData(meta *models.VideoMetadata, transcript string, descLimit, transcriptLimit int) promptData {
	d := promptData{Transcript: truncate(transcript, transcriptLimit)}
	if meta != nil {
		d.Title = meta.Title
		d.Channel = meta.ChannelTitle
		d.Description = truncate(meta.Description, descLimit)
	}
	return d
}

// Prompts is a set of parsed prompt templates keyed by id.
type Prompts struct {
	templates map[string]*template.Template
}

// NewPrompts parses the builtin prompts plus any overrides. An override with
// a builtin id replaces it.
func NewPrompts(overrides map[string]string) (*Prompts, error) {
	p := &Prompts{templates: make(map[string]*template.Template)}
	for id, text := range builtinPrompts {
		if err := p.add(id, text); err != nil {
			return nil, err
		}
	}
	for id, text := range overrides {
		if err := p.add(id, text); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prompts) add(id, text string) error {
	tmpl, err := template.New(id).Option("missingkey=error").Parse(text)
	if err != nil {
		return fmt.Errorf("parse prompt %q: %w", id, err)
	}
	p.templates[id] = tmpl
	return nil
}

// IDs lists the available prompt ids in sorted order.
func (p *Prompts) IDs() []string {
	ids := make([]string, 0, len(p.templates))
	for id := range p.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether a prompt with this id exists.
func (p *Prompts) Has(id string) bool {
	_, ok := p.templates[id]
	return ok
}

func (p *Prompts) render(id string, data promptData) (string, error) {
	tmpl, ok := p.templates[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPrompt, id)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", id, err)
	}
	return buf.String(), nil
}

// truncate cuts s to at most limit runes and marks the cut with "...".
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
