package vectorizer

import (
	_ "embed"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTokenLength is the shortest token (in runes) kept by Tokenize.
const MinTokenLength = 2

//go:embed stopwords_en.txt
var englishStopWords string

// Tokenize splits text into normalized tokens (lowercase words and numbers)
func Tokenize(text string) []string {
	f := func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsNumber(c)
	}
	fields := strings.FieldsFunc(strings.ToLower(text), f)
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if utf8.RuneCountInString(field) >= MinTokenLength {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// EnglishStopWords returns the English stop list applied when fitting the vocabulary.
func EnglishStopWords() []string {
	return strings.Fields(englishStopWords)
}
