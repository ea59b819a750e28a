package media

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractCode(t *testing.T) {
	cases := []struct {
		name     string
		question string
		wantCode string
		wantLang string
	}{
		{
			name:     "fenced with tag",
			question: "What prints?\n```python\nprint(1)\n```\nPick one.",
			wantCode: "print(1)",
			wantLang: "python",
		},
		{
			name:     "fenced without tag",
			question: "```\nx = 1\n```",
			wantCode: "x = 1",
			wantLang: DefaultLanguage,
		},
		{
			name:     "no fence treats whole string as code",
			question: "print('hello')",
			wantCode: "print('hello')",
			wantLang: DefaultLanguage,
		},
		{
			name:     "uppercase tag normalized",
			question: "```JS\nconsole.log(1)\n```",
			wantCode: "console.log(1)",
			wantLang: "js",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, lang := ExtractCode(tc.question)
			require.Equal(t, tc.wantCode, code)
			require.Equal(t, tc.wantLang, lang)
		})
	}
}

func TestResolveLexerFallsBack(t *testing.T) {
	_, lang := ResolveLexer("not-a-language")
	require.Equal(t, DefaultLanguage, lang)

	_, lang = ResolveLexer("py")
	require.Equal(t, "python", lang)

	require.True(t, KnownLanguage("go"))
	require.True(t, KnownLanguage("js"))
	require.False(t, KnownLanguage("brainmush"))
}

func TestRenderMinimumDimensions(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render("```python\nprint(1)\n```", "Python Basics")
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	require.GreaterOrEqual(t, cfg.Width, minImageWidth)
	require.GreaterOrEqual(t, cfg.Height, minImageHeight)
}

func TestRenderGrowsWithContent(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	long := "```python\n" + strings.Repeat("x = 'aaaaaaaaaaaaaaaaaaaa'\n", 40) + "```"
	out, err := r.Render(long, "Python")
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	require.Greater(t, cfg.Height, minImageHeight)
}

func TestRenderDeterministic(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	question := "```go\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n```"
	first, err := r.Render(question, "Go")
	require.NoError(t, err)
	second, err := r.Render(question, "Go")
	require.NoError(t, err)

	require.True(t, bytes.Equal(first, second), "two renders of the same task must be byte-identical")
}

func TestRenderNeverFailsOnGarbage(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	inputs := []string{
		"```klingon\n<<<>>> ??? !!!\n```",
		"no code at all, just prose",
		"```\n\n```",
		"```python\ndef broken(:\n```",
	}
	for _, q := range inputs {
		out, err := r.Render(q, "Mystery")
		require.NoError(t, err, q)
		require.NotEmpty(t, out, q)
	}
}

func TestReformat(t *testing.T) {
	got := Reformat("x=1\ny\t==2   ", "python")
	require.Equal(t, "x = 1\ny    == 2", got)

	// operators inside strings stay untouched
	got = Reformat(`s = "a==b"`, "python")
	require.Equal(t, `s = "a==b"`, got)

	// languages without spacing rules only get whitespace cleanup
	got = Reformat("a==b\t", "cpp")
	require.Equal(t, "a==b", got)

	// arrow functions must not be split by the bare = rule
	got = Reformat("f=(a)=>a+1", "javascript")
	require.Equal(t, "f = (a) => a+1", got)

	// go short declarations and channel sends keep their compound forms
	got = Reformat("x:=1", "go")
	require.Equal(t, "x := 1", got)
	got = Reformat("done<-true", "go")
	require.Equal(t, "done <- true", got)
}
