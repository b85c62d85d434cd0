package bots

import (
	"strings"

	"github.com/augument/impulsecommunicator/internal/config"
)

// ParentKind identifies what a comment was posted under.
type ParentKind int

const (
	ParentUnknown ParentKind = iota
	// ParentSubmission is a top-level post.
	ParentSubmission
	// ParentComment is another comment.
	ParentComment
)

func (k ParentKind) String() string {
	switch k {
	case ParentSubmission:
		return "submission"
	case ParentComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Reddit fullname prefixes.
const (
	prefixComment = "t1_"
	prefixLink    = "t3_"
)

// KindOf derives the parent kind from a Reddit fullname.
func KindOf(fullname string) ParentKind {
	switch {
	case strings.HasPrefix(fullname, prefixLink):
		return ParentSubmission
	case strings.HasPrefix(fullname, prefixComment):
		return ParentComment
	default:
		return ParentUnknown
	}
}

// CommentEvent is one comment delivered by the stream.
type CommentEvent struct {
	ID         string // fullname of the comment, e.g. t1_abc
	Author     string
	Body       string
	ParentID   string // fullname of the parent
	ParentKind ParentKind
}

// ReplyAction is the decision produced by the Matcher.
type ReplyAction struct {
	Target    config.ReplyTo
	Text      string
	RuleIndex int
}

// ThingID returns the fullname the reply must be posted under.
func (a ReplyAction) ThingID(ev CommentEvent) string {
	if a.Target == config.ReplyToInvoker {
		return ev.ParentID
	}
	return ev.ID
}
