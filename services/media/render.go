package media

import (
	"bytes"
	"fmt"
	"image/png"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
)

const (
	minImageWidth  = 1600
	minImageHeight = 1000

	codeFontSize  = 34.0
	topicFontSize = 44.0
	imagePadding  = 80.0
	lineSpacing   = 1.45
	headerHeight  = 120.0

	// DefaultLanguage is assumed when the question carries no fenced code
	// block or an unrecognized tag.
	DefaultLanguage = "python"

	styleName = "monokai"
)

var fencedBlockRe = regexp.MustCompile("(?s)```([a-zA-Z0-9+#_-]*)[ \t]*\n?(.*?)```")

var languageAliases = map[string]string{
	"py":     "python",
	"python": "python",
	"js":     "javascript",
	"ts":     "typescript",
	"golang": "go",
	"c++":    "cpp",
	"sh":     "bash",
	"shell":  "bash",
	"kt":     "kotlin",
	"rb":     "ruby",
	"rs":     "rust",
	"cs":     "csharp",
}

// ExtractCode pulls the first fenced code block out of a question. With no
// fence the whole question is treated as code in the default language.
func ExtractCode(question string) (code, lang string) {
	m := fencedBlockRe.FindStringSubmatch(question)
	if m == nil {
		return strings.TrimSpace(question), DefaultLanguage
	}
	lang = strings.ToLower(strings.TrimSpace(m[1]))
	if lang == "" {
		lang = DefaultLanguage
	}
	return strings.TrimRight(strings.TrimLeft(m[2], "\n"), " \t\n"), lang
}

// ResolveLexer maps a language tag to a chroma lexer. Unknown tags fall
// back to the default language, never to an error.
func ResolveLexer(lang string) (chroma.Lexer, string) {
	if alias, ok := languageAliases[lang]; ok {
		lang = alias
	}
	lexer := lexers.Get(lang)
	if lexer == nil {
		lang = DefaultLanguage
		lexer = lexers.Get(lang)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer), lang
}

// KnownLanguage reports whether a tag resolves to a real lexer without
// falling back.
func KnownLanguage(lang string) bool {
	if alias, ok := languageAliases[strings.ToLower(lang)]; ok {
		lang = alias
	}
	return lexers.Get(lang) != nil
}

// Renderer paints a question's code into a syntax-highlighted PNG.
// It never fails for well-formed UTF-8 input: malformed code and unknown
// languages produce a best-effort render.
type Renderer struct {
	codeFace  font.Face
	topicFace font.Face
	charWidth float64
}

func NewRenderer() (*Renderer, error) {
	parsed, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse mono font: %w", err)
	}

	codeFace, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size: codeFontSize, DPI: 72, Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("build code face: %w", err)
	}
	topicFace, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size: topicFontSize, DPI: 72, Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("build topic face: %w", err)
	}

	measure := gg.NewContext(1, 1)
	measure.SetFontFace(codeFace)
	charWidth, _ := measure.MeasureString("M")

	return &Renderer{
		codeFace:  codeFace,
		topicFace: topicFace,
		charWidth: charWidth,
	}, nil
}

// Render produces the task image: reformatted, highlighted code with the
// topic as a caption. Output is deterministic for a fixed input.
func (r *Renderer) Render(question, topic string) ([]byte, error) {
	code, lang := ExtractCode(question)
	return r.RenderCode(Reformat(code, lang), lang, topic)
}

// RenderCode paints already-extracted code. The video generator uses it to
// draw each typing frame from a code prefix.
func (r *Renderer) RenderCode(code, lang, topic string) ([]byte, error) {
	lexer, _ := ResolveLexer(lang)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		// tokenization is best-effort: paint the raw code in one colour
		return r.paint([][]coloredSpan{{{text: code, color: defaultTextColor}}}, topic)
	}

	style := styles.Get(styleName)
	lines := layoutTokens(iterator.Tokens(), style)
	return r.paint(lines, topic)
}

type coloredSpan struct {
	text  string
	color rgb
}

type rgb struct{ r, g, b float64 }

var defaultTextColor = rgb{0.9, 0.9, 0.9}

func spanColor(style *chroma.Style, tt chroma.TokenType) rgb {
	entry := style.Get(tt)
	if !entry.Colour.IsSet() {
		return defaultTextColor
	}
	return rgb{
		float64(entry.Colour.Red()) / 255,
		float64(entry.Colour.Green()) / 255,
		float64(entry.Colour.Blue()) / 255,
	}
}

// layoutTokens splits the token stream into per-line colored spans.
func layoutTokens(tokens []chroma.Token, style *chroma.Style) [][]coloredSpan {
	lines := [][]coloredSpan{{}}
	for _, tok := range tokens {
		color := spanColor(style, tok.Type)
		parts := strings.Split(tok.Value, "\n")
		for i, part := range parts {
			if i > 0 {
				lines = append(lines, []coloredSpan{})
			}
			if part == "" {
				continue
			}
			cur := len(lines) - 1
			lines[cur] = append(lines[cur], coloredSpan{text: part, color: color})
		}
	}
	return lines
}

func (r *Renderer) paint(lines [][]coloredSpan, topic string) ([]byte, error) {
	maxCols := 0
	for _, line := range lines {
		cols := 0
		for _, span := range line {
			cols += len([]rune(span.text))
		}
		if cols > maxCols {
			maxCols = cols
		}
	}

	lineHeight := codeFontSize * lineSpacing
	width := int(imagePadding*2 + float64(maxCols)*r.charWidth)
	height := int(imagePadding*2 + headerHeight + float64(len(lines))*lineHeight)
	if width < minImageWidth {
		width = minImageWidth
	}
	if height < minImageHeight {
		height = minImageHeight
	}

	dc := gg.NewContext(width, height)

	// editor-dark background with an accent bar under the topic
	dc.SetRGB(0.157, 0.165, 0.212)
	dc.Clear()

	dc.SetFontFace(r.topicFace)
	dc.SetRGB(0.541, 0.886, 0.204)
	dc.DrawString(topic, imagePadding, imagePadding+topicFontSize)
	dc.SetLineWidth(3)
	dc.DrawLine(imagePadding, imagePadding+topicFontSize+24, float64(width)-imagePadding, imagePadding+topicFontSize+24)
	dc.Stroke()

	dc.SetFontFace(r.codeFace)
	y := imagePadding + headerHeight + codeFontSize
	for _, line := range lines {
		x := imagePadding
		for _, span := range line {
			dc.SetRGB(span.color.r, span.color.g, span.color.b)
			dc.DrawString(span.text, x, y)
			x += float64(len([]rune(span.text))) * r.charWidth
		}
		y += lineHeight
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
