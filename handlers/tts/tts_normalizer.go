package tts

import (
	"regexp"
	"strings"
)

// normalizeTextForTTS turns an assistant reply into plain text a synthesizer can read.
func normalizeTextForTTS(text string) string {
	// fenced code is not read aloud
	text = codeFenceRegex.ReplaceAllString(text, " ")

	// [label](url) -> label
	text = linkRegex.ReplaceAllString(text, "$1")

	// strip line-leading markdown: headings, bullets, quotes
	text = lineMarkerRegex.ReplaceAllString(text, "")

	text = removeMarkdown(text)
	text = removeEmojis(text)
	text = multipleSpacesRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var markdownReplacer = strings.NewReplacer(
	"**", "", // bold
	"__", "", // underline
	"~~", "", // strikethrough
	"`", "", // inline code
	"*", "", // italic
)

func removeMarkdown(text string) string {
	return markdownReplacer.Replace(text)
}

func removeEmojis(text string) string {
	return removeEmojiRegex.ReplaceAllString(text, "")
}

var (
	codeFenceRegex      = regexp.MustCompile("(?s)```.*?```")
	linkRegex           = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	lineMarkerRegex     = regexp.MustCompile(`(?m)^[ \t]*(#{1,6}[ \t]+|[-+>][ \t]+|\d+\.[ \t]+)`)
	removeEmojiRegex    = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\p{Z}\s$+<=>^|~]`)
	multipleSpacesRegex = regexp.MustCompile(`\s+`)
)
