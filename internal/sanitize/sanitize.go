// Package sanitize cleans user-supplied names before they are stored, used
// in file names or rendered into MCP resources read by agents.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxSlugLength is the maximum length of a slug.
const MaxSlugLength = 80

// MaxTextLength is the maximum length of a sanitized label.
const MaxTextLength = 120

var (
	// reXMLTag matches XML/HTML tags, with attributes and self-closing forms,
	// and processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reLeadingMarkup matches markdown heading and quote markers at the start.
	reLeadingMarkup = regexp.MustCompile(`^[#>\s]+`)

	reBackticks = regexp.MustCompile("`+")
	reSpaces    = regexp.MustCompile(`\s{2,}`)

	reRepeatedHyphens     = regexp.MustCompile(`-{2,}`)
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

// Slug reduces input to [a-zA-Z0-9_-] for use in file names. Other
// characters become hyphens, runs of hyphens or underscores collapse, and
// the result is trimmed of hyphens and cut to MaxSlugLength.
func Slug(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	s := reRepeatedHyphens.ReplaceAllString(b.String(), "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "-")

	if len(s) > MaxSlugLength {
		s = strings.TrimRight(s[:MaxSlugLength], "-")
	}
	return s
}

// Text turns input into a single-line label that is safe to embed in
// markdown. The pipeline:
//  1. Replace control characters, newlines included, with spaces
//  2. Strip XML/HTML tags
//  3. Drop leading heading and quote markers
//  4. Replace backtick runs with a single quote
//  5. Collapse whitespace and trim
//  6. Truncate to MaxTextLength
func Text(input string) string {
	if input == "" {
		return ""
	}

	s := replaceControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reLeadingMarkup.ReplaceAllString(s, "")
	s = reBackticks.ReplaceAllString(s, "'")
	s = reSpaces.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if len(s) > MaxTextLength {
		s = truncateRunes(s, MaxTextLength) + "..."
	}
	return s
}

// replaceControlChars maps ASCII control characters (0x00-0x1F, 0x7F) to
// spaces. Null bytes are dropped.
func replaceControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 0:
		case r < 0x20 || r == 0x7F:
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut]
}
