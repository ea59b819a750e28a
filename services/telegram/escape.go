package telegram

import "strings"

// markdownV2Specials are the characters Telegram's MarkdownV2 parser treats
// as syntax in plain text. Every one of them must be backslash-escaped in
// user-supplied captions or the API rejects the message.
const markdownV2Specials = "_*[]()~`>#+-=|{}.!"

// EscapeMarkdownV2 prefixes every MarkdownV2 special character with a
// backslash so arbitrary text survives Telegram's parser.
func EscapeMarkdownV2(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
