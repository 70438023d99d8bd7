// Package rules holds the ordered rule lists used to classify messages.
package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// RegexPrefix marks a pattern as a regular expression
const RegexPrefix = "+"

// MarkReadPrefix on a folder destination means "also mark the message read"
const MarkReadPrefix = "+"

// InboxFolder is the special destination leaving a message in the inbox
const InboxFolder = "inbox"

type Kind int

const (
	Literal Kind = iota
	Regex
)

func (k Kind) String() string {
	if k == Regex {
		return "regex"
	}
	return "literal"
}

// Rule matches a header line, either by case insensitive substring or by regular expression.
type Rule struct {
	Pattern string
	Kind    Kind
	// Folder is only set on folder rules
	Folder string

	literal string
	regex   *regexp.Regexp
}

// New compiles a pattern. A pattern starting with "+" is a regular expression,
// matched without case against the whole header line ("Subject: ...").
func New(pattern string) (*Rule, error) {
	if strings.HasPrefix(pattern, RegexPrefix) {
		expr := strings.TrimPrefix(pattern, RegexPrefix)
		if expr == "" {
			return nil, fmt.Errorf("empty regular expression in rule %q", pattern)
		}
		compiled, err := regexp.Compile("(?im)" + expr)
		if err != nil {
			return nil, fmt.Errorf("invalid regular expression in rule %q: %w", pattern, err)
		}
		return &Rule{
			Pattern: pattern,
			Kind:    Regex,
			regex:   compiled,
		}, nil
	}
	if pattern == "" {
		return nil, fmt.Errorf("empty rule")
	}
	return &Rule{
		Pattern: pattern,
		Kind:    Literal,
		literal: strings.ToLower(pattern),
	}, nil
}

// NewFolderRule compiles a "<match>=<folder>" entry
func NewFolderRule(entry string) (*Rule, error) {
	pattern, folder, found := strings.Cut(entry, "=")
	if !found || folder == "" || folder == MarkReadPrefix {
		return nil, fmt.Errorf("bad folder rule %q: expected <match>=<folder>", entry)
	}
	rule, err := New(pattern)
	if err != nil {
		return nil, err
	}
	rule.Folder = folder
	return rule, nil
}

// Matches reports whether the header line is matched by the rule
func (r *Rule) Matches(line string) bool {
	if r == nil {
		return false
	}
	if r.Kind == Regex {
		return r.regex.MatchString(line)
	}
	return strings.Contains(strings.ToLower(line), r.literal)
}

// Destination returns the folder name without the mark-read prefix
func (r *Rule) Destination() string {
	return strings.TrimPrefix(r.Folder, MarkReadPrefix)
}

// MarkRead is true when the folder destination starts with "+"
func (r *Rule) MarkRead() bool {
	return strings.HasPrefix(r.Folder, MarkReadPrefix)
}

// StaysInInbox is true on the special "inbox" destination
func (r *Rule) StaysInInbox() bool {
	return strings.EqualFold(r.Destination(), InboxFolder)
}

func (r *Rule) String() string {
	if r == nil {
		return ""
	}
	if r.Folder != "" {
		return r.Pattern + "=" + r.Folder
	}
	return r.Pattern
}
