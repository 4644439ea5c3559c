package telegram

import (
	"html"
	"strings"
	"unicode/utf8"
)

// maxMessageRunes is Telegram's text limit for a single message.
const maxMessageRunes = 4096

// formatMessage renders a notification for ParseMode HTML: bold title, plain body.
// The body is cut so the whole message fits one Telegram message.
func formatMessage(title, body string) string {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" && body == "" {
		return html.EscapeString("(empty notification)")
	}
	var head string
	if title != "" {
		head = "<b>" + html.EscapeString(truncRunes(title, 256)) + "</b>"
	}
	if body == "" {
		return head
	}
	esc := escapeWithin(body, maxMessageRunes-utf8.RuneCountInString(head)-1)
	if head == "" {
		return esc
	}
	return head + "\n" + esc
}

// escapeWithin HTML-escapes s rune by rune and stops before the escaped text
// exceeds budget runes, so an entity is never cut in half.
func escapeWithin(s string, budget int) string {
	if utf8.RuneCountInString(s)*6 <= budget {
		return html.EscapeString(s)
	}
	var b strings.Builder
	used := 0
	for _, r := range s {
		e := html.EscapeString(string(r))
		n := utf8.RuneCountInString(e)
		if used+n > budget-1 {
			b.WriteString("…")
			return b.String()
		}
		b.WriteString(e)
		used += n
	}
	return b.String()
}

// truncRunes returns s truncated to at most n runes, with an ellipsis when cut.
func truncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}
