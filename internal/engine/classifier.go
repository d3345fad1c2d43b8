package engine

import "strings"

// bailOutReplies are replies that signal the user gave up on the
// clarification rather than answering it.
var bailOutReplies = map[string]bool{
	"no":             true,
	"nope":           true,
	"never mind":     true,
	"nevermind":      true,
	"cancel":         true,
	"forget it":      true,
	"stop":           true,
	"skip":           true,
	"doesn't matter": true,
	"dont care":      true,
	"don't care":     true,
	"whatever":       true,
	"n/a":            true,
}

// DefaultReplyClassifier treats a reply as a successful clarification when
// the user actually engaged with the question: non-empty and not a bail-out.
// Callers with an explicit signal should inject their own classifier.
func DefaultReplyClassifier(reply string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(reply), ".!?")))
	if trimmed == "" {
		return false
	}
	return !bailOutReplies[trimmed]
}
