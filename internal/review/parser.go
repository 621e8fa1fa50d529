// Package review implements the review-output parser and comment-poster
// pair described in spec.md §4.3, grounded on the original's
// comment_parser.py and comment_poster.py.
package review

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Comment is one finding extracted from an agent review session.
type Comment struct {
	File                  string `json:"file"`
	Line                  int    `json:"line"`
	Severity              string `json:"severity"`
	Comment               string `json:"comment"`
	Suggestion            string `json:"suggestion,omitempty"`
	SuggestionStartOffset int    `json:"suggestion_start_offset"`
	SuggestionEndOffset   int    `json:"suggestion_end_offset"`
}

// Parsed is the structured result of parsing raw agent review output.
type Parsed struct {
	Comments []Comment
	Summary  string
}

var fencedJSONArray = regexp.MustCompile("(?s)```json\\s*\\n(\\[.*?\\])\\s*\\n```")

type rawComment struct {
	File                  interface{} `json:"file"`
	Line                  interface{} `json:"line"`
	Severity              interface{} `json:"severity"`
	Comment               interface{} `json:"comment"`
	Suggestion            interface{} `json:"suggestion"`
	SuggestionStartOffset interface{} `json:"suggestion_start_offset"`
	SuggestionEndOffset   interface{} `json:"suggestion_end_offset"`
}

// Parse extracts structured comments and a summary from raw agent output.
// It looks for a fenced ```json array first, then falls back to a
// bracket-balanced scan for the first top-level JSON array anywhere in the
// text. Whatever text follows the matched array becomes the summary (minus
// a trailing closing fence), defaulting to "Review complete." when empty.
// Anything that fails to parse as an array of objects degrades to a
// summary-only result carrying the entire raw output.
func Parse(raw string) Parsed {
	loc := fencedJSONArray.FindStringSubmatchIndex(raw)
	var arrayText string
	var matchEnd int

	if loc != nil {
		arrayText = raw[loc[2]:loc[3]]
		matchEnd = loc[1]
	} else {
		start, end, ok := findBalancedArray(raw)
		if !ok {
			return Parsed{Summary: strings.TrimSpace(raw)}
		}
		arrayText = raw[start:end]
		matchEnd = end
	}

	var items []rawComment
	if err := json.Unmarshal([]byte(arrayText), &items); err != nil {
		return Parsed{Summary: strings.TrimSpace(raw)}
	}

	comments := make([]Comment, 0, len(items))
	for _, item := range items {
		c, ok := toComment(item)
		if ok {
			comments = append(comments, c)
		}
	}

	summary := strings.TrimSpace(raw[matchEnd:])
	summary = strings.TrimPrefix(summary, "```")
	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = "Review complete."
	}

	return Parsed{Comments: comments, Summary: summary}
}

// findBalancedArray locates the first top-level `[...]` span in s by
// bracket depth rather than a non-greedy regex, so a finding whose own
// `comment` text contains "]" doesn't truncate the match early.
func findBalancedArray(s string) (start, end int, ok bool) {
	depth := 0
	inString := false
	escaped := false
	start = -1

	for i, r := range s {
		if start == -1 {
			if r == '[' {
				start = i
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch r {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return start, i + 1, true
			}
		}
	}
	return 0, 0, false
}

func toComment(item rawComment) (Comment, bool) {
	file, ok := item.File.(string)
	if !ok || file == "" {
		return Comment{}, false
	}
	line, ok := item.Line.(float64)
	if !ok {
		return Comment{}, false
	}
	comment, ok := item.Comment.(string)
	if !ok || comment == "" {
		return Comment{}, false
	}

	severity := "info"
	if s, ok := item.Severity.(string); ok && s != "" {
		severity = s
	}

	var suggestion string
	if s, ok := item.Suggestion.(string); ok {
		suggestion = s
	}

	startOffset, _ := toInt(item.SuggestionStartOffset)
	endOffset, _ := toInt(item.SuggestionEndOffset)

	return Comment{
		File:                  file,
		Line:                  int(line),
		Severity:              severity,
		Comment:               comment,
		Suggestion:            suggestion,
		SuggestionStartOffset: startOffset,
		SuggestionEndOffset:   endOffset,
	}, true
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}
