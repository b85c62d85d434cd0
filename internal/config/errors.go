package config

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies configuration failures.
type Kind int

const (
	// KindIO means the file could not be opened or read.
	KindIO Kind = iota + 1
	// KindParse means the file is not well-formed JSON.
	KindParse
	// KindShape means the root element (or a rule) has the wrong JSON type.
	KindShape
	// KindField means a field is missing, mistyped or outside its value set.
	KindField
)

// Sentinels for errors.Is checks against an *Error.
var (
	ErrIO    = errors.New("config: unreadable file")
	ErrParse = errors.New("config: malformed document")
	ErrShape = errors.New("config: incorrect root element")
	ErrField = errors.New("config: incorrect field")
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindParse:
		return "parse"
	case KindShape:
		return "shape"
	case KindField:
		return "field"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindIO:
		return ErrIO
	case KindParse:
		return ErrParse
	case KindShape:
		return ErrShape
	case KindField:
		return ErrField
	default:
		return nil
	}
}

// noRule marks errors that are not tied to a rule of the run file.
const noRule = -1

// Error describes the first configuration problem found in a file.
type Error struct {
	Kind  Kind
	File  string
	Field string // empty unless Kind is KindField
	Rule  int    // rule index in the run file, -1 otherwise
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	in := ""
	if e.File != "" {
		in = fmt.Sprintf(" in file %q", e.File)
	}
	switch e.Kind {
	case KindIO:
		fmt.Fprintf(&b, "can't open file %q", e.File)
	case KindParse:
		fmt.Fprintf(&b, "impossible to parse file %q", e.File)
	case KindShape:
		if e.Rule >= 0 {
			fmt.Fprintf(&b, "incorrect rule %d%s", e.Rule, in)
		} else {
			fmt.Fprintf(&b, "incorrect root element%s", in)
		}
	case KindField:
		fmt.Fprintf(&b, "incorrect argument %q", e.Field)
		if e.Rule >= 0 {
			fmt.Fprintf(&b, " in rule %d", e.Rule)
		}
		b.WriteString(in)
	default:
		fmt.Fprintf(&b, "invalid configuration%s", in)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func fieldError(file, field string, rule int, msg string) *Error {
	return &Error{Kind: KindField, File: file, Field: field, Rule: rule, Msg: msg}
}
