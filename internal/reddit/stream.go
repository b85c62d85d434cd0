package reddit

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/augument/impulsecommunicator/internal/bots"
)

// Polling mirrors Reddit's own stream helpers.
const (
	// seenCapacity is how many recent fullnames are remembered to drop
	// repeats across polls.
	seenCapacity = 301
	pageSize     = 100
	// The listing limit is lowered by a rotating offset so consecutive
	// polls are not served from Reddit's cache.
	cacheBustCycle = 30

	minDelay = time.Second
	maxDelay = 16 * time.Second
)

// commentLister is the part of Client the stream needs.
type commentLister interface {
	NewComments(ctx context.Context, subreddit string, limit int) ([]Comment, error)
}

// CommentStream polls a subreddit for new comments and yields each one
// once, oldest first.
type CommentStream struct {
	lister       commentLister
	subreddit    string
	skipExisting bool
	logger       *slog.Logger
	sleep        func(ctx context.Context, d time.Duration) error

	seen    *boundedSet
	queue   []Comment
	polled  bool
	bust    int
	backoff time.Duration
}

// StreamOption configures a CommentStream.
type StreamOption func(*CommentStream)

// WithSkipExisting drops the comments present before the first poll.
func WithSkipExisting(skip bool) StreamOption {
	return func(s *CommentStream) { s.skipExisting = skip }
}

// WithStreamLogger sets the logger.
func WithStreamLogger(l *slog.Logger) StreamOption {
	return func(s *CommentStream) { s.logger = l }
}

// WithSleep replaces the function used to wait between empty polls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) StreamOption {
	return func(s *CommentStream) { s.sleep = sleep }
}

// Comments returns a stream of the comments posted to subreddit.
func (c *Client) Comments(subreddit string, opts ...StreamOption) *CommentStream {
	return newCommentStream(c, subreddit, append([]StreamOption{WithStreamLogger(c.logger)}, opts...)...)
}

func newCommentStream(l commentLister, subreddit string, opts ...StreamOption) *CommentStream {
	s := &CommentStream{
		lister:    l,
		subreddit: subreddit,
		logger:    slog.Default(),
		sleep:     sleepContext,
		seen:      newBoundedSet(seenCapacity),
		backoff:   minDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure CommentStream implements bots.CommentStream
var _ bots.CommentStream = (*CommentStream)(nil)

// Next blocks until a new comment is available. Polls that bring nothing
// new back off exponentially up to 16s.
func (s *CommentStream) Next(ctx context.Context) (bots.CommentEvent, error) {
	for len(s.queue) == 0 {
		if err := ctx.Err(); err != nil {
			return bots.CommentEvent{}, err
		}
		found, err := s.poll(ctx)
		if err != nil {
			return bots.CommentEvent{}, err
		}
		if found {
			s.backoff = minDelay
			continue
		}
		d := jitter(s.backoff)
		s.logger.Debug("no new comments", "subreddit", s.subreddit, "wait", d)
		if err := s.sleep(ctx, d); err != nil {
			return bots.CommentEvent{}, err
		}
		s.backoff = min(s.backoff*2, maxDelay)
	}

	c := s.queue[0]
	s.queue = s.queue[1:]
	return c.Event(), nil
}

// poll fetches one page and queues the unseen comments oldest first. It
// reports whether any unseen comment was found.
func (s *CommentStream) poll(ctx context.Context) (bool, error) {
	limit := pageSize - s.bust
	s.bust = (s.bust + 1) % cacheBustCycle

	comments, err := s.lister.NewComments(ctx, s.subreddit, limit)
	if err != nil {
		return false, err
	}

	first := !s.polled
	s.polled = true

	found := false
	for i := len(comments) - 1; i >= 0; i-- {
		c := comments[i]
		if !s.seen.add(c.Fullname()) {
			continue
		}
		found = true
		if first && s.skipExisting {
			continue
		}
		s.queue = append(s.queue, c)
	}
	return found, nil
}

// jitter spreads d by up to 1/16 of its value, centred on d.
func jitter(d time.Duration) time.Duration {
	spread := d / 16
	if spread <= 0 {
		return d
	}
	return d - spread/2 + time.Duration(rand.Int63n(int64(spread)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// boundedSet remembers the most recent keys up to a fixed capacity,
// evicting the oldest first.
type boundedSet struct {
	max   int
	order []string
	items map[string]struct{}
}

func newBoundedSet(capacity int) *boundedSet {
	return &boundedSet{max: capacity, items: make(map[string]struct{}, capacity)}
}

// add inserts key and reports whether it was absent.
func (b *boundedSet) add(key string) bool {
	if _, ok := b.items[key]; ok {
		return false
	}
	b.items[key] = struct{}{}
	b.order = append(b.order, key)
	if len(b.order) > b.max {
		delete(b.items, b.order[0])
		b.order = b.order[1:]
	}
	return true
}

func (b *boundedSet) len() int { return len(b.items) }
