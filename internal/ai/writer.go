package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// Writer turns structured context into prompts and generated text.
// A nil Writer, or one without a generator, is the disabled AI layer:
// every call returns ErrAIDisabled and callers fall back explicitly.
type Writer struct {
	gen Generator
}

// NewWriter wraps a generator; nil yields a disabled writer
func NewWriter(gen Generator) *Writer {
	return &Writer{gen: gen}
}

// Enabled reports whether calls can reach a model
func (w *Writer) Enabled() bool {
	return w != nil && w.gen != nil
}

// ReplyInput is the context for a public reply to a matching comment
type ReplyInput struct {
	CommentText        string
	CommenterName      string
	PostTopic          string
	CTAHint            string
	VoiceTone          string
	CustomInstructions string
}

// DMInput is the context for a post-driven sales DM
type DMInput struct {
	LeadName           string
	LeadHeadline       string
	PostTopic          string
	CTAType            string
	CTAValue           string
	CTAMessage         string
	CustomInstructions string
}

// SettingsDMInput is the context for a DM driven by the operator's global prompt
type SettingsDMInput struct {
	LeadName     string
	LeadHeadline string
	Prompt       string
	UserContext  string
	Origin       string
}

// InsightInput is the context for a comment on a watched person's post
type InsightInput struct {
	PostContent    string
	AuthorName     string
	AuthorHeadline string
	Expertise      []string
	Tone           string
	Style          string
	Samples        []string
}

// ReplyComment writes a short public reply to a comment
func (w *Writer) ReplyComment(ctx context.Context, in ReplyInput) (string, error) {
	first := models.FirstName(in.CommenterName)
	tone := orDefault(in.VoiceTone, "professional")
	topic := orDefault(in.PostTopic, "this topic")

	var prompt string
	if strings.TrimSpace(in.CustomInstructions) != "" {
		prompt = fmt.Sprintf(replyWithInstructionsPrompt, in.CustomInstructions, in.CommenterName, first, in.CommentText, topic, tone)
	} else {
		prompt = fmt.Sprintf(replyPrompt, topic, in.CommenterName, in.CommentText, first, orDefault(in.CTAHint, "more details"), tone)
	}
	return w.generate(ctx, prompt)
}

// SalesDM writes a DM for a lead who engaged with a post carrying a call to action
func (w *Writer) SalesDM(ctx context.Context, in DMInput) (string, error) {
	topic := orDefault(in.PostTopic, "my recent post")

	var prompt string
	if strings.TrimSpace(in.CustomInstructions) != "" {
		hint := ""
		if in.CTAMessage != "" {
			hint = "- CTA message hint: " + in.CTAMessage + "\n"
		}
		prompt = fmt.Sprintf(salesDMWithInstructionsPrompt, in.CustomInstructions, in.LeadName, models.FirstName(in.LeadName),
			in.LeadHeadline, topic, in.CTAType, in.CTAValue, hint)
	} else {
		instruction := in.CTAMessage
		if instruction == "" {
			instruction = "Include this CTA naturally: " + in.CTAValue
		}
		prompt = fmt.Sprintf(salesDMPrompt, in.LeadName, in.LeadHeadline, topic, instruction, in.CTAType, in.CTAValue)
	}
	return w.generate(ctx, prompt)
}

// SettingsDM writes a DM from the operator's global prompt and context
func (w *Writer) SettingsDM(ctx context.Context, in SettingsDMInput) (string, error) {
	prompt := fmt.Sprintf(settingsDMPrompt,
		orDefault(in.Prompt, "Write a warm, short follow-up message to a new connection."),
		orDefault(in.UserContext, "(not provided)"),
		in.LeadName, models.FirstName(in.LeadName),
		orDefault(in.LeadHeadline, "(unknown)"),
		orDefault(in.Origin, "we recently connected on LinkedIn"))
	return w.generate(ctx, prompt)
}

// InsightfulComment writes a comment for a watched person's post
func (w *Writer) InsightfulComment(ctx context.Context, in InsightInput) (string, error) {
	style := ""
	if in.Style != "" {
		style = "6. Style notes: " + in.Style + "\n"
	}
	samples := ""
	if len(in.Samples) > 0 {
		recent := in.Samples
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		samples = "\nExamples of your commenting style:\n- " + strings.Join(recent, "\n- ") + "\n"
	}

	prompt := fmt.Sprintf(insightfulCommentPrompt,
		orDefault(strings.Join(in.Expertise, ", "), "your field"),
		in.AuthorName, orDefault(in.AuthorHeadline, "no headline"), in.PostContent,
		orDefault(in.Tone, "professional"), style, samples)
	return w.generate(ctx, prompt)
}

func (w *Writer) generate(ctx context.Context, prompt string) (string, error) {
	if !w.Enabled() {
		return "", ErrAIDisabled
	}
	text, err := w.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text = strings.Trim(strings.TrimSpace(text), `"`)
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
