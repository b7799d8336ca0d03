// Package linkedapitest provides a testify mock of the automation provider.
package linkedapitest

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// MockAutomation is a mock implementation of linkedapi.Automation
type MockAutomation struct {
	mock.Mock
}

func (m *MockAutomation) GetPostComments(ctx context.Context, postURL string, limit int) ([]linkedapi.Comment, error) {
	args := m.Called(ctx, postURL, limit)
	comments, _ := args.Get(0).([]linkedapi.Comment)
	return comments, args.Error(1)
}

func (m *MockAutomation) CommentOnPost(ctx context.Context, postURL, text string) error {
	args := m.Called(ctx, postURL, text)
	return args.Error(0)
}

func (m *MockAutomation) CheckConnection(ctx context.Context, personURL string) (models.ConnectionStatus, error) {
	args := m.Called(ctx, personURL)
	return args.Get(0).(models.ConnectionStatus), args.Error(1)
}

func (m *MockAutomation) SendConnectionRequest(ctx context.Context, personURL, note string) error {
	args := m.Called(ctx, personURL, note)
	return args.Error(0)
}

func (m *MockAutomation) SendMessage(ctx context.Context, personURL, text string) error {
	args := m.Called(ctx, personURL, text)
	return args.Error(0)
}

func (m *MockAutomation) GetPersonPosts(ctx context.Context, personURL string, limit int, since *time.Time) ([]linkedapi.PersonPost, error) {
	args := m.Called(ctx, personURL, limit, since)
	posts, _ := args.Get(0).([]linkedapi.PersonPost)
	return posts, args.Error(1)
}

func (m *MockAutomation) ReactAndComment(ctx context.Context, postURL, reaction, text string) error {
	args := m.Called(ctx, postURL, reaction, text)
	return args.Error(0)
}

// Source hands out one client per account id; unknown accounts get Err
type Source struct {
	Clients map[string]linkedapi.Automation
	Err     error
}

// NewSource maps account ids to clients
func NewSource(clients map[string]linkedapi.Automation) *Source {
	return &Source{Clients: clients, Err: models.ErrNoCredential}
}

func (s *Source) ClientFor(ctx context.Context, accountID string) (linkedapi.Automation, error) {
	if c, ok := s.Clients[accountID]; ok {
		return c, nil
	}
	return nil, s.Err
}
