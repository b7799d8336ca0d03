package ai

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CommentInput is one comment offered to the intent classifier
type CommentInput struct {
	Text          string
	CommenterName string
}

// IntentMatch is a classifier verdict; Index points into the classified batch
type IntentMatch struct {
	Index      int
	Keyword    string
	Confidence string
}

// ClassifyComments asks the model which comments express interest in any keyword
func (w *Writer) ClassifyComments(ctx context.Context, comments []CommentInput, keywords []string, postContext string) ([]IntentMatch, error) {
	if !w.Enabled() {
		return nil, ErrAIDisabled
	}
	if len(comments) == 0 || len(keywords) == 0 {
		return nil, nil
	}

	var lines strings.Builder
	for i, c := range comments {
		fmt.Fprintf(&lines, "%d. %q - by %s\n", i+1, c.Text, orDefault(c.CommenterName, "Unknown"))
	}
	extra := ""
	if postContext != "" {
		extra = "\nPOST CONTEXT: " + postContext + "\n"
	}

	answer, err := w.gen.Generate(ctx, fmt.Sprintf(classifyPrompt, strings.Join(keywords, ", "), lines.String(), extra))
	if err != nil {
		return nil, err
	}
	return ParseIntentMatches(answer, len(comments)), nil
}

// ParseIntentMatches reads "MATCH: n | KEYWORD: k | CONFIDENCE: c" lines.
// Numbers are 1-based in the answer and 0-based in the result; malformed or
// out of range lines are dropped.
func ParseIntentMatches(answer string, batchSize int) []IntentMatch {
	if strings.Contains(answer, "NO_MATCHES") {
		return nil
	}

	var matches []IntentMatch
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "MATCH:") {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 2 {
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[0]), "MATCH:")))
		if err != nil || n < 1 || n > batchSize {
			continue
		}
		keyword := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[1]), "KEYWORD:"))
		if keyword == "" {
			continue
		}
		confidence := ""
		if len(parts) > 2 {
			confidence = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[2]), "CONFIDENCE:")))
		}

		matches = append(matches, IntentMatch{Index: n - 1, Keyword: keyword, Confidence: confidence})
	}
	return matches
}
