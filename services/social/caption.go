package social

import (
	"strings"

	"github.com/gosimple/slug"
)

// BuildCaption assembles the plain-text caption sent to every platform.
// No markup: each backend or receiving automation applies its own
// formatting rules.
func BuildCaption(snap *TaskSnapshot, link string) string {
	var b strings.Builder

	b.WriteString(strings.TrimSpace(snap.Question))
	b.WriteString("\n\n")

	if link != "" {
		if snap.Language == "ru" {
			b.WriteString("Ответ и разбор: ")
		} else {
			b.WriteString("Answer and explanation: ")
		}
		b.WriteString(link)
		b.WriteString("\n\n")
	}

	b.WriteString(hashtags(snap))
	return strings.TrimSpace(b.String())
}

func hashtags(snap *TaskSnapshot) string {
	tags := []string{"#" + tagify(snap.Topic)}
	if snap.Subtopic != "" {
		tags = append(tags, "#"+tagify(snap.Subtopic))
	}
	if snap.Language == "ru" {
		tags = append(tags, "#программирование")
	} else {
		tags = append(tags, "#coding", "#programming")
	}
	return strings.Join(tags, " ")
}

func tagify(s string) string {
	return strings.ReplaceAll(slug.Make(s), "-", "")
}
