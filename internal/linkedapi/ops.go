package linkedapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

var validate = validator.New()

type postCommentsInput struct {
	PostURL string `validate:"required,url"`
	Limit   int    `validate:"gte=1,lte=100"`
}

type postTextInput struct {
	PostURL string `validate:"required,url"`
	Text    string `validate:"required"`
}

type personInput struct {
	PersonURL string `validate:"required,url"`
}

type personTextInput struct {
	PersonURL string `validate:"required,url"`
	Text      string `validate:"required"`
}

type personPostsInput struct {
	PersonURL string `validate:"required,url"`
	Limit     int    `validate:"gte=1,lte=50"`
}

type reactInput struct {
	PostURL  string `validate:"required,url"`
	Reaction string `validate:"required,oneof=like celebrate support love insightful funny"`
	Text     string `validate:"required"`
}

func check(input interface{}) error {
	if err := validate.Struct(input); err != nil {
		return fmt.Errorf("%v: %w", err, models.ErrValidation)
	}
	return nil
}

// GetPostComments returns up to limit comments of a post, most recent first
func (c *Client) GetPostComments(ctx context.Context, postURL string, limit int) ([]Comment, error) {
	if err := check(postCommentsInput{PostURL: postURL, Limit: limit}); err != nil {
		return nil, err
	}

	completion, err := c.Execute(ctx, Workflow{
		"actionType": ActionRetrievePostComments,
		"postUrl":    postURL,
		"sort":       "mostRecent",
		"limit":      limit,
	})
	if err != nil {
		return nil, err
	}
	return parseComments(completion), nil
}

// CommentOnPost posts a public comment
func (c *Client) CommentOnPost(ctx context.Context, postURL, text string) error {
	if err := check(postTextInput{PostURL: postURL, Text: strings.TrimSpace(text)}); err != nil {
		return err
	}

	completion, err := c.Execute(ctx, Workflow{
		"actionType": ActionCommentOnPost,
		"postUrl":    postURL,
		"text":       text,
	})
	if err != nil {
		return err
	}
	return requireSuccess(completion, "comment on post")
}

// CheckConnection returns the connection status between the account and a person
func (c *Client) CheckConnection(ctx context.Context, personURL string) (models.ConnectionStatus, error) {
	if err := check(personInput{PersonURL: personURL}); err != nil {
		return models.ConnectionUnknown, err
	}

	completion, err := c.Execute(ctx, Workflow{
		"actionType": ActionCheckConnectionStatus,
		"personUrl":  personURL,
	})
	if err != nil {
		return models.ConnectionUnknown, err
	}
	return parseConnectionStatus(completion), nil
}

// SendConnectionRequest invites a person; the note is cut to MaxNoteLength
func (c *Client) SendConnectionRequest(ctx context.Context, personURL, note string) error {
	if err := check(personInput{PersonURL: personURL}); err != nil {
		return err
	}

	workflow := Workflow{
		"actionType": ActionSendConnectionRequest,
		"personUrl":  personURL,
	}
	if note = strings.TrimSpace(note); note != "" {
		workflow["note"] = TruncateNote(note)
	}

	completion, err := c.Execute(ctx, workflow)
	if err != nil {
		return err
	}
	return requireSuccess(completion, "send connection request")
}

// SendMessage sends a direct message to a first-degree connection
func (c *Client) SendMessage(ctx context.Context, personURL, text string) error {
	if err := check(personTextInput{PersonURL: personURL, Text: strings.TrimSpace(text)}); err != nil {
		return err
	}

	completion, err := c.Execute(ctx, Workflow{
		"actionType": ActionSendMessage,
		"personUrl":  personURL,
		"text":       text,
	})
	if err != nil {
		return err
	}
	return requireSuccess(completion, "send message")
}

// GetPersonPosts returns a person's recent posts, optionally only those after since
func (c *Client) GetPersonPosts(ctx context.Context, personURL string, limit int, since *time.Time) ([]PersonPost, error) {
	if err := check(personPostsInput{PersonURL: personURL, Limit: limit}); err != nil {
		return nil, err
	}

	retrieve := Workflow{
		"actionType": ActionRetrievePersonPosts,
		"limit":      limit,
	}
	if since != nil {
		retrieve["since"] = since.UTC().Format(time.RFC3339)
	}

	completion, err := c.Execute(ctx, Workflow{
		"actionType": ActionOpenPersonPage,
		"personUrl":  personURL,
		"then":       []Workflow{retrieve},
	})
	if err != nil {
		return nil, err
	}
	return parsePersonPosts(completion), nil
}

// ReactAndComment opens a post, reacts to it and leaves a comment in one workflow
func (c *Client) ReactAndComment(ctx context.Context, postURL, reaction, text string) error {
	if reaction == "" {
		reaction = "like"
	}
	if err := check(reactInput{PostURL: postURL, Reaction: reaction, Text: strings.TrimSpace(text)}); err != nil {
		return err
	}

	completion, err := c.Execute(ctx, Workflow{
		"actionType": ActionOpenPost,
		"postUrl":    postURL,
		"basicInfo":  false,
		"then": []Workflow{
			{"actionType": ActionReactToPost, "type": reaction},
			{"actionType": ActionCommentOnPost, "text": text},
		},
	})
	if err != nil {
		return err
	}
	return requireSuccess(completion, "react and comment")
}

// TruncateNote cuts a connection note to the platform limit, counting characters not bytes
func TruncateNote(note string) string {
	r := []rune(note)
	if len(r) <= MaxNoteLength {
		return note
	}
	return string(r[:MaxNoteLength])
}

func requireSuccess(completion Completion, what string) error {
	if completion.Success() {
		return nil
	}
	reason := completion.Error()
	if reason == "" {
		reason = "provider reported no success"
	}
	return fmt.Errorf("%s: %s: %w", what, reason, models.ErrWorkflow)
}

func parseComments(completion Completion) []Comment {
	items := firstList(completion.Raw(), []interface{}{"data"}, []interface{}{"data", "comments"}, []interface{}{"comments"}, []interface{}{})

	comments := make([]Comment, 0, len(items))
	for _, item := range items {
		c := Comment{
			CommenterURL: firstString(item,
				[]interface{}{"commenterUrl"}, []interface{}{"authorUrl"}, []interface{}{"author", "url"}),
			CommenterName: firstString(item,
				[]interface{}{"commenterName"}, []interface{}{"authorName"}, []interface{}{"author", "name"}),
			CommenterHeadline: firstString(item,
				[]interface{}{"commenterHeadline"}, []interface{}{"authorHeadline"}, []interface{}{"author", "headline"}),
			Text: firstString(item, []interface{}{"text"}, []interface{}{"comment"}),
			Time: firstString(item, []interface{}{"time"}, []interface{}{"date"}),
		}
		if c.CommenterURL == "" {
			continue
		}
		comments = append(comments, c)
	}
	return comments
}

func parseConnectionStatus(completion Completion) models.ConnectionStatus {
	return models.ParseConnectionStatus(firstString(completion.Raw(),
		[]interface{}{"data", "connectionStatus"},
		[]interface{}{"connectionStatus"},
		[]interface{}{"data", "status"},
	))
}

func parsePersonPosts(completion Completion) []PersonPost {
	items := firstList(completion.Raw(),
		[]interface{}{"data", "then", 0, "data"},
		[]interface{}{"then", 0, "data"},
		[]interface{}{"data", "posts"},
		[]interface{}{"data"},
	)

	posts := make([]PersonPost, 0, len(items))
	for _, item := range items {
		p := PersonPost{
			URL:  firstString(item, []interface{}{"url"}, []interface{}{"postUrl"}),
			Text: firstString(item, []interface{}{"text"}, []interface{}{"content"}),
			Time: firstString(item, []interface{}{"time"}, []interface{}{"date"}),
		}
		if p.URL == "" {
			continue
		}
		posts = append(posts, p)
	}
	return posts
}
