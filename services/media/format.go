package media

import "strings"

// Reformat applies a best-effort pretty-print to code before rendering:
// tabs become four spaces, trailing whitespace is dropped and binary
// operators get surrounding spaces where the language allows it.
// Formatting never fails; anything it cannot improve is returned as-is.
func Reformat(code, lang string) string {
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.ReplaceAll(line, "\t", "    ")
		line = strings.TrimRight(line, " \t")
		if spaceable(lang) {
			line = spaceOperators(line)
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func spaceable(lang string) bool {
	switch lang {
	case "python", "go", "javascript", "typescript", "ruby", "kotlin":
		return true
	default:
		return false
	}
}

// operators ordered longest-first so compound forms win over their parts;
// arrows and := must come before the bare = or they get split.
var spacedOperators = []string{
	"==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", ":=",
	"=>", "->", "<-", "&&", "||", "=",
}

// spaceOperators inserts spaces around the recognized operators outside of
// string literals. A line the scanner cannot follow is left untouched.
func spaceOperators(line string) string {
	var b strings.Builder
	inString := byte(0)
	i := 0
	for i < len(line) {
		c := line[i]
		if inString != 0 {
			b.WriteByte(c)
			if c == inString && (i == 0 || line[i-1] != '\\') {
				inString = 0
			}
			i++
			continue
		}
		if c == '"' || c == '\'' || c == '`' {
			inString = c
			b.WriteByte(c)
			i++
			continue
		}
		matched := false
		for _, op := range spacedOperators {
			if strings.HasPrefix(line[i:], op) {
				if i > 0 && line[i-1] != ' ' {
					b.WriteByte(' ')
				}
				b.WriteString(op)
				if i+len(op) < len(line) && line[i+len(op)] != ' ' {
					b.WriteByte(' ')
				}
				i += len(op)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}
