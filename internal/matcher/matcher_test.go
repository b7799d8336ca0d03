package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/palma21/linkedin-outreach-bot/internal/ai"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/storage/storagetest"
)

type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) ClassifyComments(ctx context.Context, comments []ai.CommentInput, keywords []string, postContext string) ([]ai.IntentMatch, error) {
	args := m.Called(ctx, comments, keywords, postContext)
	matches, _ := args.Get(0).([]ai.IntentMatch)
	return matches, args.Error(1)
}

func keywordsOf(results []Result) map[string]string {
	out := make(map[string]string, len(results))
	for _, r := range results {
		if r.MatchedKeyword != nil {
			out[r.Comment.Text] = *r.MatchedKeyword
		} else {
			out[r.Comment.Text] = ""
		}
	}
	return out
}

func TestMatchKeyword(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		want     string
		ok       bool
	}{
		{"case insensitive", "I'm very INTERESTED!", []string{"interested"}, "interested", true},
		{"first in list wins", "send me the guide, interested", []string{"guide", "interested"}, "guide", true},
		{"list order not text order", "send me the guide, interested", []string{"interested", "guide"}, "interested", true},
		{"no match", "nice post", []string{"interested"}, "", false},
		{"blank keywords ignored", "anything", []string{"", "  "}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchKeyword(tt.text, tt.keywords)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_SkipsProcessedAndBatchDuplicates(t *testing.T) {
	store := storagetest.NewStore(t)
	ctx := context.Background()
	account := storagetest.SeedAccount(t, store, "Acme")
	post := storagetest.SeedPost(t, store, account.ID, "interested")

	seen := linkedapi.Comment{CommenterURL: "https://www.linkedin.com/in/a", Text: "interested"}
	_, err := store.CreateProcessedComment(ctx, &models.ProcessedComment{
		PostID: post.ID, CommenterURL: seen.CommenterURL, CommentText: seen.Text,
	})
	require.NoError(t, err)

	fresh := linkedapi.Comment{CommenterURL: "https://www.linkedin.com/in/b", Text: "interested too"}
	results, err := NewMatcher(store, nil).Evaluate(ctx, post, []linkedapi.Comment{seen, fresh, fresh}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, fresh, results[0].Comment)
	assert.True(t, results[0].Matched())
}

func TestEvaluate_ClassifierTakesPrecedencePerComment(t *testing.T) {
	store := storagetest.NewStore(t)
	account := storagetest.SeedAccount(t, store, "Acme")
	post := storagetest.SeedPost(t, store, account.ID, "build", "guide")

	comments := []linkedapi.Comment{
		{CommenterURL: "https://www.linkedin.com/in/a", Text: "Count me in!"},
		{CommenterURL: "https://www.linkedin.com/in/b", Text: "guide please"},
		{CommenterURL: "https://www.linkedin.com/in/c", Text: "nice"},
		{CommenterURL: "https://www.linkedin.com/in/d", Text: "want the guide"},
	}
	classifier := &MockClassifier{}
	classifier.On("ClassifyComments", mock.Anything, mock.Anything, []string(post.Keywords), post.PostTitle).Return([]ai.IntentMatch{
		{Index: 0, Keyword: "BUILD", Confidence: "high"},
		{Index: 2, Keyword: "webinar", Confidence: "high"},
		{Index: 3, Keyword: "build", Confidence: "medium"},
	}, nil)

	results, err := NewMatcher(store, classifier).Evaluate(context.Background(), post, comments, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Count me in!":   "build",
		"guide please":   "guide",
		"nice":           "",
		"want the guide": "build",
	}, keywordsOf(results))
	classifier.AssertExpectations(t)
}

func TestEvaluate_ClassifierFailureFallsBackToSubstring(t *testing.T) {
	store := storagetest.NewStore(t)
	account := storagetest.SeedAccount(t, store, "Acme")
	post := storagetest.SeedPost(t, store, account.ID, "interested", "demo")

	comments := []linkedapi.Comment{
		{CommenterURL: "https://www.linkedin.com/in/a", Text: "I'm interested"},
		{CommenterURL: "https://www.linkedin.com/in/b", Text: "Count me in!"},
		{CommenterURL: "https://www.linkedin.com/in/c", Text: "Demo?"},
	}
	classifier := &MockClassifier{}
	classifier.On("ClassifyComments", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("model down"))

	withFailingAI, err := NewMatcher(store, classifier).Evaluate(context.Background(), post, comments, true)
	require.NoError(t, err)
	withoutAI, err := NewMatcher(store, nil).Evaluate(context.Background(), post, comments, false)
	require.NoError(t, err)

	assert.Equal(t, keywordsOf(withoutAI), keywordsOf(withFailingAI))
	assert.Equal(t, "", keywordsOf(withFailingAI)["Count me in!"])
}

func TestEvaluate_AIDisabledSkipsClassifier(t *testing.T) {
	store := storagetest.NewStore(t)
	account := storagetest.SeedAccount(t, store, "Acme")
	post := storagetest.SeedPost(t, store, account.ID, "interested")

	classifier := &MockClassifier{}
	results, err := NewMatcher(store, classifier).Evaluate(context.Background(), post,
		[]linkedapi.Comment{{CommenterURL: "https://www.linkedin.com/in/a", Text: "interested"}}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].ByClassifier)
	classifier.AssertNotCalled(t, "ClassifyComments", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
