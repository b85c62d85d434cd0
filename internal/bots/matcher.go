package bots

import (
	"math/rand"

	"github.com/augument/impulsecommunicator/internal/config"
)

// Matcher decides whether a comment triggers one of the reply rules.
type Matcher struct {
	pick func(n int) int
}

// NewMatcher creates a Matcher that chooses answers uniformly at random.
func NewMatcher() *Matcher {
	return &Matcher{pick: rand.Intn}
}

// NewMatcherWithPicker creates a Matcher that uses pick to choose an answer
// index in [0, n). A deterministic pick makes the choice reproducible.
func NewMatcherWithPicker(pick func(n int) int) *Matcher {
	return &Matcher{pick: pick}
}

// Match scans rules in order and returns the action of the first rule that
// applies to ev. The second result is false when no rule applies.
func (m *Matcher) Match(ev CommentEvent, rules []config.ReplyRule) (ReplyAction, bool) {
	for i, rule := range rules {
		if ev.Author != rule.BotName {
			continue
		}
		if !applicable(ev.ParentKind, rule) {
			continue
		}
		if len(rule.Answers) == 0 {
			continue
		}
		return ReplyAction{
			Target:    rule.ReplyTo,
			Text:      rule.Answers[m.pick(len(rule.Answers))],
			RuleIndex: i,
		}, true
	}
	return ReplyAction{}, false
}

// applicable reports whether rule may answer a comment whose parent is of
// the given kind. A submission has no invoker to reply to.
func applicable(kind ParentKind, rule config.ReplyRule) bool {
	switch kind {
	case ParentSubmission:
		return (rule.ReplyOn == config.ReplyOnPost || rule.ReplyOn == config.ReplyOnBoth) &&
			rule.ReplyTo != config.ReplyToInvoker
	case ParentComment:
		return rule.ReplyOn == config.ReplyOnComment || rule.ReplyOn == config.ReplyOnBoth
	default:
		return false
	}
}
