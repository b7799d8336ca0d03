package linkedapi

import (
	"context"
	"time"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// Workflow is one asynchronous unit of work, e.g. {"actionType": "st.sendMessage", ...}.
type Workflow map[string]interface{}

// Action type tags understood by the provider
const (
	ActionRetrievePostComments  = "st.retrievePostComments"
	ActionCommentOnPost         = "st.commentOnPost"
	ActionCheckConnectionStatus = "st.checkConnectionStatus"
	ActionSendConnectionRequest = "st.sendConnectionRequest"
	ActionSendMessage           = "st.sendMessage"
	ActionOpenPersonPage        = "st.openPersonPage"
	ActionRetrievePersonPosts   = "st.retrievePersonPosts"
	ActionOpenPost              = "st.openPost"
	ActionReactToPost           = "st.reactToPost"
)

// MaxNoteLength is the platform's cap on connection request notes, in characters
const MaxNoteLength = 300

// Comment is a comment under a post as the core sees it
type Comment struct {
	CommenterURL      string
	CommenterName     string
	CommenterHeadline string
	Text              string
	Time              string
}

// PersonPost is a post on a watched person's feed
type PersonPost struct {
	URL  string
	Text string
	Time string
}

// Automation is everything the core asks of the automation provider for one account
type Automation interface {
	GetPostComments(ctx context.Context, postURL string, limit int) ([]Comment, error)
	CommentOnPost(ctx context.Context, postURL, text string) error
	CheckConnection(ctx context.Context, personURL string) (models.ConnectionStatus, error)
	SendConnectionRequest(ctx context.Context, personURL, note string) error
	SendMessage(ctx context.Context, personURL, text string) error
	GetPersonPosts(ctx context.Context, personURL string, limit int, since *time.Time) ([]PersonPost, error)
	ReactAndComment(ctx context.Context, postURL, reaction, text string) error
}

// ClientSource hands out an account's automation client
type ClientSource interface {
	ClientFor(ctx context.Context, accountID string) (Automation, error)
}
