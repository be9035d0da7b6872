package search

import (
	"strings"
	"unicode/utf8"
)

const (
	maxQueryLength = 100
	likeEscape     = "!"
)

var likeReplacer = strings.NewReplacer(
	likeEscape, likeEscape+likeEscape,
	"%", likeEscape+"%",
	"_", likeEscape+"_",
)

// NormalizeText trims and lowercases user input and caps it at
// maxQueryLength runes.
func NormalizeText(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if utf8.RuneCountInString(text) > maxQueryLength {
		text = string([]rune(text)[:maxQueryLength])
	}
	return text
}

// ContainsPattern builds a LIKE pattern matching text anywhere in a value.
// LIKE wildcards in the input are matched literally.
func ContainsPattern(text string) string {
	return "%" + likeReplacer.Replace(text) + "%"
}
