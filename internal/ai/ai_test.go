package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func TestWriter_DisabledReturnsErrAIDisabled(t *testing.T) {
	var nilWriter *Writer
	ctx := context.Background()

	for _, w := range []*Writer{nilWriter, NewWriter(nil)} {
		assert.False(t, w.Enabled())
		_, err := w.ReplyComment(ctx, ReplyInput{CommenterName: "Ann"})
		assert.ErrorIs(t, err, ErrAIDisabled)
		_, err = w.SalesDM(ctx, DMInput{LeadName: "Ann"})
		assert.ErrorIs(t, err, ErrAIDisabled)
		_, err = w.ClassifyComments(ctx, []CommentInput{{Text: "yes"}}, []string{"yes"}, "")
		assert.ErrorIs(t, err, ErrAIDisabled)
	}
}

func TestWriter_ReplyCommentPromptCarriesContext(t *testing.T) {
	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return assert.Contains(t, p, "Priya") && assert.Contains(t, p, "pricing playbook") && assert.Contains(t, p, "witty")
	})).Return("  \"Sending it over, Priya!\"  ", nil)

	text, err := NewWriter(gen).ReplyComment(context.Background(), ReplyInput{
		CommentText:   "interested!",
		CommenterName: "Priya Raman",
		PostTopic:     "pricing playbook",
		VoiceTone:     "witty",
	})
	require.NoError(t, err)
	assert.Equal(t, "Sending it over, Priya!", text)
	gen.AssertExpectations(t)
}

func TestWriter_SalesDMUsesCustomInstructions(t *testing.T) {
	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return assert.Contains(t, p, "Always mention the free audit") && assert.Contains(t, p, "CTA message hint: book a call")
	})).Return("Hi Sam, ...", nil)

	_, err := NewWriter(gen).SalesDM(context.Background(), DMInput{
		LeadName:           "Sam Ortiz",
		CTAMessage:         "book a call",
		CustomInstructions: "Always mention the free audit",
	})
	require.NoError(t, err)
}

func TestWriter_EmptyGeneration(t *testing.T) {
	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return("   ", nil)

	_, err := NewWriter(gen).InsightfulComment(context.Background(), InsightInput{PostContent: "x"})
	assert.ErrorIs(t, err, ErrEmptyGeneration)
}

func TestWriter_GeneratorErrorPassesThrough(t *testing.T) {
	gen := &MockGenerator{}
	boom := errors.New("quota")
	gen.On("Generate", mock.Anything, mock.Anything).Return("", boom)

	_, err := NewWriter(gen).SettingsDM(context.Background(), SettingsDMInput{LeadName: "Lee"})
	assert.ErrorIs(t, err, boom)
}

func TestParseIntentMatches(t *testing.T) {
	answer := `Here you go:
MATCH: 1 | KEYWORD: build | CONFIDENCE: High
MATCH: 3 | KEYWORD: guide | CONFIDENCE: medium
MATCH: 9 | KEYWORD: build | CONFIDENCE: high
MATCH: two | KEYWORD: build | CONFIDENCE: high
MATCH: 2 | KEYWORD:  | CONFIDENCE: high`

	matches := ParseIntentMatches(answer, 3)
	assert.Equal(t, []IntentMatch{
		{Index: 0, Keyword: "build", Confidence: "high"},
		{Index: 2, Keyword: "guide", Confidence: "medium"},
	}, matches)

	assert.Nil(t, ParseIntentMatches("NO_MATCHES", 3))
	assert.Nil(t, ParseIntentMatches("", 3))
}

func TestRenderDMTemplate(t *testing.T) {
	assert.Equal(t, "Hi Jordan, thanks for connecting!", RenderDMTemplate("Hi {name}, thanks for connecting!", "Jordan Lee"))
	assert.Equal(t, "Hey Jordan - Jordan Lee", RenderDMTemplate("Hey {firstName} - {full_name}", "Jordan Lee"))
	assert.Equal(t, "Hey there - there", RenderDMTemplate("Hey {firstName} - {full_name}", "  "))
	assert.Equal(t, "Hi there,", RenderDMTemplate("Hi {first_name},", ""))
}

func TestTemplateReply(t *testing.T) {
	assert.Contains(t, TemplateReply("Ann Lee"), "Thanks Ann!")
	assert.Contains(t, TemplateReply(""), "Thanks there!")
}
