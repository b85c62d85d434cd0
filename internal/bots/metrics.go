package bots

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts what the runner sees and does.
type Metrics struct {
	CommentsSeen prometheus.Counter
	RuleMatches  *prometheus.CounterVec
	Replies      *prometheus.CounterVec
	Errors       *prometheus.CounterVec
}

// NewMetrics creates the runner metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CommentsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "impulse",
			Subsystem: "stream",
			Name:      "comments_seen_total",
			Help:      "Total number of comments received from the stream",
		}),
		RuleMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "impulse",
			Subsystem: "rules",
			Name:      "matches_total",
			Help:      "Total number of comments matched, by bot name",
		}, []string{"bot_name"}),
		Replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "impulse",
			Subsystem: "replies",
			Name:      "posted_total",
			Help:      "Total number of replies posted, by target",
		}, []string{"target"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "impulse",
			Subsystem: "stream",
			Name:      "errors_total",
			Help:      "Total number of fatal errors, by stage",
		}, []string{"stage"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.CommentsSeen, m.RuleMatches, m.Replies, m.Errors} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}
