package config

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultAuthPath is the auth settings file used when --auth is not given.
	DefaultAuthPath = "auth.conf"
	// DefaultRunPath is the rules file used when --run is not given.
	DefaultRunPath = "run.conf"
	// EnvPrefix prefixes environment overrides for auth settings,
	// e.g. IMPULSE_AUTH_PASSWORD.
	EnvPrefix = "IMPULSE_AUTH_"
)

// LoadAuthSettings reads the auth settings file at path, validates every
// field, then overlays environment variable overrides (IMPULSE_AUTH_*).
func LoadAuthSettings(path string) (*AuthSettings, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &Error{Kind: KindShape, File: path, Rule: noRule}
	}

	v, err := firstViolation(authSchema, obj, authFields)
	if err != nil {
		return nil, &Error{Kind: KindField, File: path, Rule: noRule, Err: err}
	}
	if v != nil {
		return nil, fieldError(path, v.field, noRule, v.msg)
	}

	// Only the known keys go into koanf; unknown keys are ignored.
	known := make(map[string]any, len(authFields))
	for _, f := range authFields {
		known[f] = obj[f]
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(known, "."), nil); err != nil {
		return nil, fmt.Errorf("loading auth settings %s: %w", path, err)
	}

	// Overlay environment variables: IMPULSE_AUTH_CLIENT_SECRET -> client_secret.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if !slices.Contains(authFields, key) {
			return ""
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	var s AuthSettings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("unmarshalling auth settings %s: %w", path, err)
	}

	if err := s.validate(path); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadRunSettings reads the reply rules file at path. Rules are validated
// in order and the first offending field stops loading.
func LoadRunSettings(path string) ([]ReplyRule, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}

	items, ok := doc.([]any)
	if !ok {
		return nil, &Error{Kind: KindShape, File: path, Rule: noRule}
	}

	rules := make([]ReplyRule, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &Error{Kind: KindShape, File: path, Rule: i}
		}

		v, err := firstViolation(ruleSchema, obj, ruleFields)
		if err != nil {
			return nil, &Error{Kind: KindField, File: path, Rule: i, Err: err}
		}
		if v != nil {
			return nil, fieldError(path, v.field, i, v.msg)
		}

		rules = append(rules, decodeRule(obj))
	}
	return rules, nil
}

// decodeRule converts a schema-checked rule object into a ReplyRule.
func decodeRule(obj map[string]any) ReplyRule {
	raw := obj["answers"].([]any)
	answers := make([]string, len(raw))
	for i, a := range raw {
		answers[i] = a.(string)
	}
	return ReplyRule{
		BotName: obj["bot_name"].(string),
		ReplyOn: ReplyOn(obj["reply_on"].(string)),
		ReplyTo: ReplyTo(obj["reply_to"].(string)),
		Answers: answers,
	}
}

func readDocument(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: KindIO, File: path, Rule: noRule, Err: err}
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Kind: KindParse, File: path, Rule: noRule, Err: err}
	}
	return doc, nil
}

// Validate checks that every auth setting is present.
func (a *AuthSettings) Validate() error {
	return a.validate("")
}

func (a *AuthSettings) validate(file string) error {
	values := []string{a.UserAgent, a.ClientID, a.ClientSecret, a.Username, a.Password, a.Subreddit}
	for i, v := range values {
		if v == "" {
			return fieldError(file, authFields[i], noRule, "must not be empty")
		}
	}
	return nil
}

// Validate checks a single rule the same way LoadRunSettings does.
func (r ReplyRule) Validate() error {
	switch {
	case !validReplyOn[r.ReplyOn]:
		return fieldError("", "reply_on", noRule, "possible values: post, comment, both")
	case !validReplyTo[r.ReplyTo]:
		return fieldError("", "reply_to", noRule, "possible values: bot, invoker")
	case len(r.Answers) == 0:
		return fieldError("", "answers", noRule, "must contain at least one answer")
	}
	return nil
}

// Save writes the auth settings to path as indented JSON. The file is
// created owner-readable only since it holds credentials.
func (a *AuthSettings) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling auth settings: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("writing auth settings to %s: %w", path, err)
	}
	return nil
}

// SaveRunSettings writes rules to path as an indented JSON array.
func SaveRunSettings(path string, rules []ReplyRule) error {
	if rules == nil {
		rules = []ReplyRule{}
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling run settings: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing run settings to %s: %w", path, err)
	}
	return nil
}
