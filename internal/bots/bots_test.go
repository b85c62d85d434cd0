package bots

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/augument/impulsecommunicator/internal/config"
)

// fakeStream replays a fixed list of events, then blocks until ctx is done
// or returns err if one is set.
type fakeStream struct {
	events []CommentEvent
	err    error
}

func (f *fakeStream) Next(ctx context.Context) (CommentEvent, error) {
	if len(f.events) > 0 {
		ev := f.events[0]
		f.events = f.events[1:]
		return ev, nil
	}
	if f.err != nil {
		return CommentEvent{}, f.err
	}
	<-ctx.Done()
	return CommentEvent{}, ctx.Err()
}

type postedReply struct {
	thingID string
	text    string
}

// fakeReplier records replies and optionally fails or cancels.
type fakeReplier struct {
	replies []postedReply
	err     error
	after   func()
}

func (f *fakeReplier) Reply(_ context.Context, thingID, text string) error {
	if f.err != nil {
		return f.err
	}
	f.replies = append(f.replies, postedReply{thingID, text})
	if f.after != nil {
		f.after()
	}
	return nil
}

func firstPick(int) int { return 0 }

func rule(name string, on config.ReplyOn, to config.ReplyTo, answers ...string) config.ReplyRule {
	return config.ReplyRule{BotName: name, ReplyOn: on, ReplyTo: to, Answers: answers}
}

func commentEvent(author string, parent ParentKind) CommentEvent {
	parentID := "t1_parent"
	if parent == ParentSubmission {
		parentID = "t3_post"
	}
	return CommentEvent{ID: "t1_self", Author: author, Body: "I am a bot", ParentID: parentID, ParentKind: parent}
}

// --- Matcher tests ---

func TestMatchCommentRuleOnCommentParent(t *testing.T) {
	m := NewMatcherWithPicker(firstPick)
	rules := []config.ReplyRule{rule("AutoModerator", config.ReplyOnComment, config.ReplyToBot, "hi")}

	action, ok := m.Match(commentEvent("AutoModerator", ParentComment), rules)
	if !ok {
		t.Fatal("expected a match")
	}
	if action.Target != config.ReplyToBot || action.Text != "hi" {
		t.Errorf("got %+v, want target bot text hi", action)
	}
}

func TestMatchCommentRuleOnSubmissionParent(t *testing.T) {
	m := NewMatcherWithPicker(firstPick)
	rules := []config.ReplyRule{rule("AutoModerator", config.ReplyOnComment, config.ReplyToBot, "hi")}

	if _, ok := m.Match(commentEvent("AutoModerator", ParentSubmission), rules); ok {
		t.Error("reply_on=comment must not match a submission parent")
	}
}

func TestMatchBothMatchesEitherParent(t *testing.T) {
	m := NewMatcherWithPicker(firstPick)
	rules := []config.ReplyRule{rule("bot", config.ReplyOnBoth, config.ReplyToBot, "x")}
	for _, kind := range []ParentKind{ParentSubmission, ParentComment} {
		if _, ok := m.Match(commentEvent("bot", kind), rules); !ok {
			t.Errorf("reply_on=both should match a %s parent", kind)
		}
	}
}

func TestMatchPostInvokerNeverMatches(t *testing.T) {
	m := NewMatcherWithPicker(firstPick)
	rules := []config.ReplyRule{rule("bot", config.ReplyOnPost, config.ReplyToInvoker, "x")}

	for _, kind := range []ParentKind{ParentSubmission, ParentComment, ParentUnknown} {
		if _, ok := m.Match(commentEvent("bot", kind), rules); ok {
			t.Errorf("post+invoker must never match, matched %s parent", kind)
		}
	}
}

func TestMatchBothInvokerOnlyOnComments(t *testing.T) {
	m := NewMatcherWithPicker(firstPick)
	rules := []config.ReplyRule{rule("bot", config.ReplyOnBoth, config.ReplyToInvoker, "x")}

	if _, ok := m.Match(commentEvent("bot", ParentSubmission), rules); ok {
		t.Error("invoker target must not match a submission parent")
	}
	if _, ok := m.Match(commentEvent("bot", ParentComment), rules); !ok {
		t.Error("both+invoker should match a comment parent")
	}
}

func TestMatchPostRuleOnComment(t *testing.T) {
	m := NewMatcherWithPicker(firstPick)
	rules := []config.ReplyRule{rule("bot", config.ReplyOnPost, config.ReplyToBot, "x")}

	if _, ok := m.Match(commentEvent("bot", ParentComment), rules); ok {
		t.Error("reply_on=post must not match a comment parent")
	}
	if _, ok := m.Match(commentEvent("bot", ParentSubmission), rules); !ok {
		t.Error("reply_on=post reply_to=bot should match a submission parent")
	}
}

func TestMatchAuthorIsCaseSensitive(t *testing.T) {
	m := NewMatcherWithPicker(firstPick)
	rules := []config.ReplyRule{rule("AutoModerator", config.ReplyOnBoth, config.ReplyToBot, "x")}

	if _, ok := m.Match(commentEvent("automoderator", ParentComment), rules); ok {
		t.Error("author comparison must be case-sensitive")
	}
}

func TestMatchFirstRuleWins(t *testing.T) {
	m := NewMatcherWithPicker(firstPick)
	rules := []config.ReplyRule{
		rule("other", config.ReplyOnBoth, config.ReplyToBot, "nope"),
		rule("bot", config.ReplyOnPost, config.ReplyToBot, "not applicable"),
		rule("bot", config.ReplyOnComment, config.ReplyToInvoker, "first"),
		rule("bot", config.ReplyOnBoth, config.ReplyToBot, "second"),
	}

	action, ok := m.Match(commentEvent("bot", ParentComment), rules)
	if !ok {
		t.Fatal("expected a match")
	}
	if action.Text != "first" || action.RuleIndex != 2 || action.Target != config.ReplyToInvoker {
		t.Errorf("got %+v, want rule 2 text first", action)
	}
}

func TestMatchDeterministicPick(t *testing.T) {
	rules := []config.ReplyRule{rule("bot", config.ReplyOnBoth, config.ReplyToBot, "a", "b", "c")}
	ev := commentEvent("bot", ParentComment)

	m := NewMatcherWithPicker(func(n int) int { return n - 1 })
	for i := 0; i < 5; i++ {
		action, _ := m.Match(ev, rules)
		if action.Text != "c" {
			t.Fatalf("iteration %d: got %q, want c", i, action.Text)
		}
	}
}

func TestMatchRandomPickStaysInRange(t *testing.T) {
	rules := []config.ReplyRule{rule("bot", config.ReplyOnBoth, config.ReplyToBot, "a", "b", "c")}
	ev := commentEvent("bot", ParentComment)
	m := NewMatcher()

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		action, ok := m.Match(ev, rules)
		if !ok {
			t.Fatal("expected a match")
		}
		seen[action.Text] = true
	}
	for text := range seen {
		if text != "a" && text != "b" && text != "c" {
			t.Errorf("unexpected answer %q", text)
		}
	}
	if len(seen) < 2 {
		t.Errorf("expected several distinct answers over 200 draws, got %v", seen)
	}
}

func TestMatchNoRules(t *testing.T) {
	if _, ok := NewMatcher().Match(commentEvent("bot", ParentComment), nil); ok {
		t.Error("no rules must mean no match")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		fullname string
		want     ParentKind
	}{
		{"t3_abc", ParentSubmission},
		{"t1_abc", ParentComment},
		{"t5_abc", ParentUnknown},
		{"", ParentUnknown},
	}
	for _, tt := range tests {
		if got := KindOf(tt.fullname); got != tt.want {
			t.Errorf("KindOf(%q) = %s, want %s", tt.fullname, got, tt.want)
		}
	}
}

// --- Runner tests ---

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runUntilDrained(t *testing.T, r *Runner, replier *fakeReplier, want int) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if want == 0 {
		cancel()
	} else {
		prev := replier.after
		replier.after = func() {
			if prev != nil {
				prev()
			}
			if len(replier.replies) >= want {
				cancel()
			}
		}
	}
	return r.Run(ctx)
}

func TestRunnerRepliesToTargets(t *testing.T) {
	stream := &fakeStream{events: []CommentEvent{
		{ID: "t1_a", Author: "bot", Body: "one", ParentID: "t3_p", ParentKind: ParentSubmission},
		{ID: "t1_b", Author: "someone", Body: "two", ParentID: "t1_a", ParentKind: ParentComment},
		{ID: "t1_c", Author: "bot", Body: "three", ParentID: "t1_x", ParentKind: ParentComment},
	}}
	replier := &fakeReplier{}
	rules := []config.ReplyRule{
		rule("bot", config.ReplyOnPost, config.ReplyToBot, "to bot"),
		rule("bot", config.ReplyOnComment, config.ReplyToInvoker, "to invoker"),
	}
	r := NewRunner(stream, replier, rules, WithMatcher(NewMatcherWithPicker(firstPick)), WithLogger(quietLogger()))

	err := runUntilDrained(t, r, replier, 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	want := []postedReply{
		{thingID: "t1_a", text: "to bot"},
		{thingID: "t1_x", text: "to invoker"},
	}
	if len(replier.replies) != len(want) {
		t.Fatalf("got %d replies, want %d: %+v", len(replier.replies), len(want), replier.replies)
	}
	for i := range want {
		if replier.replies[i] != want[i] {
			t.Errorf("reply %d = %+v, want %+v", i, replier.replies[i], want[i])
		}
	}
}

func TestRunnerNotifyLogLine(t *testing.T) {
	for _, notify := range []bool{true, false} {
		t.Run(fmt.Sprintf("notify=%v", notify), func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			stream := &fakeStream{events: []CommentEvent{commentEvent("bot", ParentComment)}}
			replier := &fakeReplier{}
			rules := []config.ReplyRule{rule("bot", config.ReplyOnBoth, config.ReplyToBot, "hello there")}
			r := NewRunner(stream, replier, rules, WithNotify(notify), WithLogger(logger))

			_ = runUntilDrained(t, r, replier, 1)

			logged := strings.Contains(buf.String(), "REPLY")
			if logged != notify {
				t.Errorf("REPLY line logged = %v, want %v; log: %s", logged, notify, buf.String())
			}
			if notify && !strings.Contains(buf.String(), "hello there") {
				t.Errorf("REPLY line should carry the answer: %s", buf.String())
			}
			if notify && !strings.Contains(buf.String(), `body="i am a bot"`) {
				t.Errorf("REPLY line should carry the lowercased body: %s", buf.String())
			}
			if len(replier.replies) != 1 {
				t.Errorf("reply must be posted regardless of notify, got %d", len(replier.replies))
			}
		})
	}
}

func TestRunnerReplyFailureIsFatal(t *testing.T) {
	stream := &fakeStream{events: []CommentEvent{
		commentEvent("bot", ParentComment),
		commentEvent("bot", ParentComment),
	}}
	replier := &fakeReplier{err: errors.New("RATELIMIT: you are doing that too much")}
	rules := []config.ReplyRule{rule("bot", config.ReplyOnBoth, config.ReplyToBot, "x")}
	metrics, err := NewMetrics(nil)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRunner(stream, replier, rules, WithLogger(quietLogger()), WithMetrics(metrics))

	err = r.Run(context.Background())
	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StreamError, got %T: %v", err, err)
	}
	if se.Op != "reply" || se.CommentID != "t1_self" {
		t.Errorf("got op %q comment %q", se.Op, se.CommentID)
	}
	if !strings.Contains(err.Error(), "RATELIMIT") {
		t.Errorf("error should carry the cause: %v", err)
	}
	if len(stream.events) != 1 {
		t.Errorf("loop must stop at the first failure, %d events left", len(stream.events))
	}
	if got := testutil.ToFloat64(metrics.Errors.WithLabelValues("reply")); got != 1 {
		t.Errorf("reply errors = %v, want 1", got)
	}
}

func TestRunnerStreamFailureIsFatal(t *testing.T) {
	stream := &fakeStream{err: errors.New("connection reset")}
	r := NewRunner(stream, &fakeReplier{}, nil, WithLogger(quietLogger()))

	err := r.Run(context.Background())
	var se *StreamError
	if !errors.As(err, &se) || se.Op != "stream" {
		t.Fatalf("expected stream *StreamError, got %v", err)
	}
}

func TestRunnerCancelledBeforeStart(t *testing.T) {
	r := NewRunner(&fakeStream{}, &fakeReplier{}, nil, WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunnerSkipsOwnComments(t *testing.T) {
	stream := &fakeStream{events: []CommentEvent{
		commentEvent("me", ParentComment),
		commentEvent("bot", ParentComment),
	}}
	replier := &fakeReplier{}
	rules := []config.ReplyRule{
		rule("me", config.ReplyOnBoth, config.ReplyToBot, "loop"),
		rule("bot", config.ReplyOnBoth, config.ReplyToBot, "ok"),
	}
	r := NewRunner(stream, replier, rules, WithSelfName("me"), WithLogger(quietLogger()))

	_ = runUntilDrained(t, r, replier, 1)
	if len(replier.replies) != 1 || replier.replies[0].text != "ok" {
		t.Errorf("got replies %+v, want only ok", replier.replies)
	}
}

func TestRunnerMetrics(t *testing.T) {
	stream := &fakeStream{events: []CommentEvent{
		commentEvent("nobody", ParentComment),
		commentEvent("bot", ParentComment),
	}}
	replier := &fakeReplier{}
	metrics, err := NewMetrics(nil)
	if err != nil {
		t.Fatal(err)
	}
	rules := []config.ReplyRule{rule("bot", config.ReplyOnBoth, config.ReplyToBot, "x")}
	r := NewRunner(stream, replier, rules, WithMetrics(metrics), WithLogger(quietLogger()))

	_ = runUntilDrained(t, r, replier, 1)

	if got := testutil.ToFloat64(metrics.CommentsSeen); got != 2 {
		t.Errorf("comments seen = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.RuleMatches.WithLabelValues("bot")); got != 1 {
		t.Errorf("matches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Replies.WithLabelValues("bot")); got != 1 {
		t.Errorf("replies = %v, want 1", got)
	}
}
