package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const authSchemaJSON = `{
  "type": "object",
  "required": ["user_agent", "client_id", "client_secret", "username", "password", "subreddit"],
  "properties": {
    "user_agent":    {"type": "string", "minLength": 1},
    "client_id":     {"type": "string", "minLength": 1},
    "client_secret": {"type": "string", "minLength": 1},
    "username":      {"type": "string", "minLength": 1},
    "password":      {"type": "string", "minLength": 1},
    "subreddit":     {"type": "string", "minLength": 1}
  }
}`

const ruleSchemaJSON = `{
  "type": "object",
  "required": ["bot_name", "reply_on", "reply_to", "answers"],
  "properties": {
    "bot_name": {"type": "string"},
    "reply_on": {"type": "string", "enum": ["post", "comment", "both"]},
    "reply_to": {"type": "string", "enum": ["bot", "invoker"]},
    "answers":  {"type": "array", "minItems": 1, "items": {"type": "string"}}
  }
}`

// rootContext is how gojsonschema names the document root in field paths.
const rootContext = "(root)"

// Field declaration order. The first offending field in this order is
// the one reported.
var (
	authFields = []string{"user_agent", "client_id", "client_secret", "username", "password", "subreddit"}
	ruleFields = []string{"bot_name", "reply_on", "reply_to", "answers"}
)

var (
	authSchema = mustSchema(authSchemaJSON)
	ruleSchema = mustSchema(ruleSchemaJSON)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("config: compiling schema: %v", err))
	}
	return s
}

// violation is a single schema failure mapped back to a top-level field.
type violation struct {
	field string
	msg   string
}

// firstViolation validates doc against s and returns the violation of the
// earliest field in order, or nil when doc is valid.
func firstViolation(s *gojsonschema.Schema, doc any, order []string) (*violation, error) {
	result, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	var best *violation
	bestPos := len(order)
	for _, re := range result.Errors() {
		field, nested := topLevelField(re)
		pos := slices.Index(order, field)
		if pos < 0 {
			pos = len(order)
		}
		if best == nil || pos < bestPos {
			best = &violation{field: field, msg: describe(re, field, nested)}
			bestPos = pos
		}
	}
	return best, nil
}

// topLevelField extracts the property a schema error belongs to, and
// whether the error is about an element nested inside it.
func topLevelField(re gojsonschema.ResultError) (string, bool) {
	if re.Type() == "required" {
		if p, ok := re.Details()["property"].(string); ok {
			return p, false
		}
	}
	f := strings.TrimPrefix(re.Field(), rootContext)
	f = strings.TrimPrefix(f, ".")
	head, _, nested := strings.Cut(f, ".")
	return head, nested
}

func describe(re gojsonschema.ResultError, field string, nested bool) string {
	switch re.Type() {
	case "required":
		return "missing"
	case "invalid_type":
		if nested {
			return "must contain only strings"
		}
		if field == "answers" {
			return "must be an array of strings"
		}
		return "must be a string"
	case "enum":
		switch field {
		case "reply_on":
			return "possible values: post, comment, both"
		case "reply_to":
			return "possible values: bot, invoker"
		}
	case "string_gte":
		return "must not be empty"
	case "array_min_items":
		return "must contain at least one answer"
	}
	return re.Description()
}
