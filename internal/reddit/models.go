package reddit

import "github.com/augument/impulsecommunicator/internal/bots"

// KindComment is the thing kind of a comment.
const KindComment = "t1"

// Listing is a page of things returned by listing endpoints.
type Listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Before   string  `json:"before"`
		Children []Thing `json:"children"`
	} `json:"data"`
}

// Thing wraps one listing child.
type Thing struct {
	Kind string  `json:"kind"`
	Data Comment `json:"data"`
}

// Comment is the subset of comment fields the bot reads.
type Comment struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	ParentID   string  `json:"parent_id"`
	LinkID     string  `json:"link_id"`
	Subreddit  string  `json:"subreddit"`
	CreatedUTC float64 `json:"created_utc"`
}

// Fullname returns the t1_ identifier of the comment.
func (c Comment) Fullname() string {
	if c.Name != "" {
		return c.Name
	}
	return KindComment + "_" + c.ID
}

// Event converts the comment to the form the runner consumes.
func (c Comment) Event() bots.CommentEvent {
	return bots.CommentEvent{
		ID:         c.Fullname(),
		Author:     c.Author,
		Body:       c.Body,
		ParentID:   c.ParentID,
		ParentKind: bots.KindOf(c.ParentID),
	}
}

// replyResponse is the envelope of /api/comment with api_type=json.
type replyResponse struct {
	JSON struct {
		Errors [][]string `json:"errors"`
		Data   struct {
			Things []Thing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}
