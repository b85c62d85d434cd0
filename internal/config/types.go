package config

// ReplyOn selects which kind of parent content a rule reacts to.
type ReplyOn string

const (
	ReplyOnPost    ReplyOn = "post"
	ReplyOnComment ReplyOn = "comment"
	ReplyOnBoth    ReplyOn = "both"
)

// ReplyTo selects where the reply is posted: under the bot's comment or
// under the comment that summoned the bot.
type ReplyTo string

const (
	ReplyToBot     ReplyTo = "bot"
	ReplyToInvoker ReplyTo = "invoker"
)

// validReplyOn is the set of recognized reply_on values.
var validReplyOn = map[ReplyOn]bool{
	ReplyOnPost:    true,
	ReplyOnComment: true,
	ReplyOnBoth:    true,
}

// validReplyTo is the set of recognized reply_to values.
var validReplyTo = map[ReplyTo]bool{
	ReplyToBot:     true,
	ReplyToInvoker: true,
}

// AuthSettings holds the credentials of a Reddit script app and the
// subreddit to watch. It corresponds to auth.conf.
type AuthSettings struct {
	UserAgent    string `json:"user_agent" yaml:"user_agent" koanf:"user_agent"`
	ClientID     string `json:"client_id" yaml:"client_id" koanf:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret" koanf:"client_secret"`
	Username     string `json:"username" yaml:"username" koanf:"username"`
	Password     string `json:"password" yaml:"password" koanf:"password"`
	Subreddit    string `json:"subreddit" yaml:"subreddit" koanf:"subreddit"`
}

// ReplyRule maps a bot account and a parent kind to a set of canned answers.
type ReplyRule struct {
	BotName string   `json:"bot_name" yaml:"bot_name"`
	ReplyOn ReplyOn  `json:"reply_on" yaml:"reply_on"`
	ReplyTo ReplyTo  `json:"reply_to" yaml:"reply_to"`
	Answers []string `json:"answers" yaml:"answers"`
}

// Unreachable reports whether the rule can never fire: a submission has no
// invoker to answer, and "post" excludes comment parents.
func (r ReplyRule) Unreachable() bool {
	return r.ReplyOn == ReplyOnPost && r.ReplyTo == ReplyToInvoker
}

// Redacted returns a copy safe for printing.
func (a AuthSettings) Redacted() AuthSettings {
	out := a
	if out.ClientSecret != "" {
		out.ClientSecret = "********"
	}
	if out.Password != "" {
		out.Password = "********"
	}
	return out
}
