package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Previews are served without a theme stylesheet, so colours are inlined.
var formatter = html.New(
	html.WithClasses(false),
	html.WithLineNumbers(false),
	html.PreventSurroundingPre(false),
)

// HighlightCode returns code as highlighted HTML, or the escaped code when
// highlighting fails.
func HighlightCode(code, language, theme string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(theme)
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		renderLogger.Debug().Err(err).Str("language", language).Msg("Tokenise failed")
		return "<pre>" + escape(code) + "</pre>"
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return "<pre>" + escape(code) + "</pre>"
	}
	return buf.String()
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;")

func escape(s string) string {
	return escaper.Replace(s)
}
