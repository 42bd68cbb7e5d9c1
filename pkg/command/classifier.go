// Package command classifies free-form user utterances into the fixed
// set of voice commands understood by the procedure engine.
package command

import (
	"regexp"
	"strings"
)

// Command is a discrete voice command.
type Command string

const (
	Start       Command = "start"
	Stop        Command = "stop"
	Resume      Command = "resume"
	Repeat      Command = "repeat"
	SkipConfirm Command = "skip_confirm"
	Skip        Command = "skip"
	Explain     Command = "explain"
	SafetyCheck Command = "safety_check"
	Confirm     Command = "confirm"
)

// Valid reports whether s names a known command.
func Valid(s string) bool {
	switch Command(s) {
	case Start, Stop, Resume, Repeat, SkipConfirm, Skip, Explain, SafetyCheck, Confirm:
		return true
	}
	return false
}

// rule pairs a command with its match predicate. Rules are evaluated
// top-down and the first match wins; the order is load-bearing because
// the trigger vocabularies overlap ("skip confirm" vs "skip", "confirm").
type rule struct {
	cmd   Command
	match *regexp.Regexp
}

// Anchored rules match the whole utterance. Their trigger words ("start",
// "safe", "done") are too common in ordinary speech for substring matching.
// The substring rules use word boundaries only; those phrases are rare
// enough mid-sentence to be safe ("okay let's skip this one").
var rules = []rule{
	{Start, regexp.MustCompile(`(?i)^(?:ready|start|begin|go|let'?s start|let'?s go|let'?s begin|i'?m ready|yes,? i'?m ready|ok(?:ay)?,? (?:ready|start|begin))[.!]?$`)},
	{Stop, regexp.MustCompile(`(?i)\b(?:stop|pause|hold on)\b`)},
	{Resume, regexp.MustCompile(`(?i)\b(?:resume|continue|go on)\b`)},
	{Repeat, regexp.MustCompile(`(?i)\b(?:repeat|say that again|again)\b`)},
	{SkipConfirm, regexp.MustCompile(`(?i)\b(?:skip confirm|confirm skip)\b`)},
	{Skip, regexp.MustCompile(`(?i)\b(?:skip|move on|next one)\b`)},
	{Explain, regexp.MustCompile(`(?i)\b(?:explain|why|more detail)\b`)},
	{SafetyCheck, regexp.MustCompile(`(?i)^(?:safety check|is (?:this|it|that) safe|safe to\b.*|any risks?\b.*|what are the risks)[?.!]?$`)},
	{Confirm, regexp.MustCompile(`(?i)^(?:confirm|confirmed|done|completed|finished|that'?s done|all done|i'?m done|ok(?:ay)?,? done|yes,? done)[.!]?$`)},
}

// Classify maps free text to a command. The second return is false when
// no rule matched, which callers treat as an unrecognized utterance, not
// an error.
func Classify(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	for _, r := range rules {
		if r.match.MatchString(text) {
			return r.cmd, true
		}
	}
	return "", false
}
