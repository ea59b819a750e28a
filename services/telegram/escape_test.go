package telegram

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscapeMarkdownV2(t *testing.T) {
	require.Equal(t, `Test\. Result\! 2 \- 3 \= ?`, EscapeMarkdownV2("Test. Result! 2 - 3 = ?"))
	require.Equal(t, `plain text`, EscapeMarkdownV2("plain text"))
	require.Equal(t, `\_\*\[\]\(\)\~\`+"\\`"+`\>\#\+\-\=\|\{\}\.\!`, EscapeMarkdownV2("_*[]()~`>#+-=|{}.!"))
}

// Every special in the output must be preceded by a backslash — the escape
// closure property over random strings from the punctuation set.
func TestEscapeClosureRandomStrings(t *testing.T) {
	alphabet := []rune(markdownV2Specials + "abc XYZ 0123 эюя")
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		n := rng.Intn(40)
		var in strings.Builder
		for j := 0; j < n; j++ {
			in.WriteRune(alphabet[rng.Intn(len(alphabet))])
		}

		out := []rune(EscapeMarkdownV2(in.String()))
		for k, r := range out {
			if strings.ContainsRune(markdownV2Specials, r) {
				require.True(t, k > 0 && out[k-1] == '\\',
					"special %q at %d not escaped in %q", r, k, string(out))
			}
		}
	}
}

func TestEscapeIdempotentOnCleanText(t *testing.T) {
	in := "Который язык напечатает 42"
	require.Equal(t, in, EscapeMarkdownV2(in))
}
