package bots

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/augument/impulsecommunicator/internal/config"
)

// StreamError is a fatal failure of the processing loop.
type StreamError struct {
	Op        string // "stream" or "reply"
	CommentID string
	Err       error
}

func (e *StreamError) Error() string {
	if e.CommentID != "" {
		return fmt.Sprintf("runtime error: %s %s: %v", e.Op, e.CommentID, e.Err)
	}
	return fmt.Sprintf("runtime error: %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Runner consumes the comment stream one event at a time and replies to
// the comments that match a rule.
type Runner struct {
	stream   CommentStream
	replier  Replier
	rules    []config.ReplyRule
	matcher  *Matcher
	notify   bool
	selfName string
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithNotify turns the per-reply log line on or off. It is on by default.
func WithNotify(on bool) Option {
	return func(r *Runner) { r.notify = on }
}

// WithSelfName makes the runner ignore comments written by the bot account
// itself.
func WithSelfName(name string) Option {
	return func(r *Runner) { r.selfName = name }
}

// WithMatcher replaces the default random matcher.
func WithMatcher(m *Matcher) Option {
	return func(r *Runner) { r.matcher = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics sets the counters the runner updates.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a Runner over stream and replier with the given rules.
func NewRunner(stream CommentStream, replier Replier, rules []config.ReplyRule, opts ...Option) *Runner {
	r := &Runner{
		stream:  stream,
		replier: replier,
		rules:   rules,
		notify:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.matcher == nil {
		r.matcher = NewMatcher()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.metrics == nil {
		r.metrics, _ = NewMetrics(nil)
	}
	return r
}

// Run processes events until ctx is cancelled or an error occurs. It
// returns ctx.Err() on cancellation and a *StreamError otherwise.
func (r *Runner) Run(ctx context.Context) error {
	for {
		ev, err := r.stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.metrics.Errors.WithLabelValues("stream").Inc()
			return &StreamError{Op: "stream", Err: err}
		}

		if err := r.handle(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func (r *Runner) handle(ctx context.Context, ev CommentEvent) error {
	r.metrics.CommentsSeen.Inc()

	if r.selfName != "" && ev.Author == r.selfName {
		return nil
	}

	action, ok := r.matcher.Match(ev, r.rules)
	if !ok {
		return nil
	}
	rule := r.rules[action.RuleIndex]
	r.metrics.RuleMatches.WithLabelValues(rule.BotName).Inc()

	if r.notify {
		r.logger.Info("REPLY",
			"body", strings.ToLower(ev.Body),
			"answer", action.Text,
			"comment", ev.ID,
			"target", string(action.Target))
	}

	thingID := action.ThingID(ev)
	if err := r.replier.Reply(ctx, thingID, action.Text); err != nil {
		r.metrics.Errors.WithLabelValues("reply").Inc()
		return &StreamError{Op: "reply", CommentID: thingID, Err: err}
	}
	r.metrics.Replies.WithLabelValues(string(action.Target)).Inc()

	r.logger.Debug("reply posted", "thing_id", thingID, "rule", action.RuleIndex)
	return nil
}
