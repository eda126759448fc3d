package textclean

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var tagPattern = regexp.MustCompile(`(?i)</?[a-z][a-z0-9]*(\s[^<>]*)?/?>`)

// LooksLikeHTML reports whether s contains at least one HTML tag.
func LooksLikeHTML(s string) bool {
	return tagPattern.MatchString(s)
}

// Clean returns the visible text of an HTML message body with whitespace collapsed.
// Plain text is returned unchanged.
func Clean(s string) string {
	if !LooksLikeHTML(s) {
		return s
	}
	text, err := extractText(strings.NewReader(s))
	if err != nil {
		return s
	}
	return text
}

// extractText walks the token stream, dropping script and style content.
func extractText(body io.Reader) (string, error) {
	tokenizer := html.NewTokenizer(body)
	var textBuilder strings.Builder
	inScript := false
	inStyle := false

	for {
		tokenType := tokenizer.Next()

		switch tokenType {
		case html.ErrorToken:
			if tokenizer.Err() == io.EOF {
				return cleanText(textBuilder.String()), nil
			}
			return "", tokenizer.Err()

		case html.StartTagToken:
			switch tokenizer.Token().Data {
			case "script":
				inScript = true
			case "style":
				inStyle = true
			}

		case html.EndTagToken:
			switch tokenizer.Token().Data {
			case "script":
				inScript = false
			case "style":
				inStyle = false
			}

		case html.TextToken:
			if !inScript && !inStyle {
				text := strings.TrimSpace(tokenizer.Token().Data)
				if text != "" {
					textBuilder.WriteString(text + " ")
				}
			}
		}
	}
}

// cleanText removes excessive whitespace
func cleanText(input string) string {
	return strings.Join(strings.Fields(input), " ")
}
