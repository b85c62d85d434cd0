package bots

import "context"

// CommentStream yields comments in delivery order. Next blocks until a
// comment is available or ctx is done.
type CommentStream interface {
	Next(ctx context.Context) (CommentEvent, error)
}

// Replier posts a reply under the thing identified by its fullname.
type Replier interface {
	Reply(ctx context.Context, thingID, text string) error
}
