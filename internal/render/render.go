// Package render turns draft markdown into preview HTML.
package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	md_html "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/rs/zerolog"

	"github.com/mmarkdown/mmark/v2/lang"
	"github.com/mmarkdown/mmark/v2/mast"
	"github.com/mmarkdown/mmark/v2/mparser"
	"github.com/mmarkdown/mmark/v2/render/mhtml"

	"github.com/debemdeboas/inkwell/internal/cache"
	"github.com/debemdeboas/inkwell/internal/util"
)

var renderLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	renderLogger = l
}

const (
	EngineMmark   = "mmark"
	EngineClassic = "classic"
)

// Renderer renders previews with one engine and syntax theme. Output is
// cached by content hash.
type Renderer struct {
	Engine      string
	SyntaxTheme string

	mu sync.Mutex
}

func New(engine, syntaxTheme string) *Renderer {
	return &Renderer{Engine: engine, SyntaxTheme: syntaxTheme}
}

func (r *Renderer) Render(md []byte) []byte {
	hash := util.ContentHash(append([]byte(r.Engine+"\x00"), md...))
	if cached, ok := cache.GetRenderedPreview(hash, r.SyntaxTheme); ok {
		renderLogger.Debug().Str("contentHash", hash).Msg("Cache hit for rendered preview")
		return cached.HTML
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []byte
	switch r.Engine {
	case EngineClassic:
		out = RenderClassic(md, r.SyntaxTheme)
	default:
		out, _ = RenderMmark(md, r.SyntaxTheme)
	}
	cache.SetRenderedPreview(hash, r.SyntaxTheme, out)
	return out
}

func codeBlockHook(theme string) func(io.Writer, ast.Node, bool) (ast.WalkStatus, bool) {
	return func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
		code, ok := node.(*ast.CodeBlock)
		if !ok || !entering {
			return ast.GoToNext, false
		}
		var language string
		if code.Info != nil {
			language = string(code.Info)
		}
		fmt.Fprintf(w, "<div class=\"highlight\">%s</div>", HighlightCode(string(code.Literal), language, theme))
		return ast.GoToNext, true
	}
}

func RenderClassic(md []byte, theme string) []byte {
	hook := codeBlockHook(theme)
	opts := md_html.RendererOptions{
		Flags: md_html.CommonFlags | md_html.HrefTargetBlank | md_html.FootnoteReturnLinks,
		RenderNodeHook: func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
			if status, handled := hook(w, node, entering); handled {
				return status, handled
			}
			if callout, ok := node.(*ast.Callout); ok && entering {
				fmt.Fprintf(w, "<span class=\"callout\">%s</span>", callout.ID)
				return ast.GoToNext, true
			}
			return ast.GoToNext, false
		},
	}

	doc := parser.NewWithExtensions(
		parser.Tables | parser.FencedCode | parser.Autolink | parser.Strikethrough | parser.SpaceHeadings |
			parser.HeadingIDs | parser.BackslashLineBreak | parser.SuperSubscript | parser.DefinitionLists |
			parser.AutoHeadingIDs | parser.Footnotes | parser.OrderedListStart | parser.Attributes,
	).Parse(md)
	return markdown.Render(doc, md_html.NewRenderer(opts))
}

// RenderMmark renders mmark markdown and returns the parsed title block, or a
// default one when the document has none. Includes are not resolved.
func RenderMmark(md []byte, theme string) ([]byte, *mast.TitleData) {
	md = markdown.NormalizeNewlines(md)

	p := parser.NewWithExtensions(mparser.Extensions | parser.NoIntraEmphasis)

	var info *mast.TitleData
	p.Opts = parser.Options{
		ParserHook: func(data []byte) (ast.Node, []byte, int) {
			node, data, consumed := mparser.Hook(data)
			if t, ok := node.(*mast.Title); ok {
				info = t.TitleData
			}
			return node, data, consumed
		},
		Flags: parser.FlagsNone,
	}

	doc := markdown.Parse(md, p)
	mparser.AddIndex(doc)

	if info == nil {
		info = &mast.TitleData{Title: "Untitled", Language: "en"}
	}
	if info.Language == "" {
		info.Language = "en"
	}

	mhtmlOpts := mhtml.RendererOptions{Language: lang.New(info.Language)}
	hook := codeBlockHook(theme)
	opts := md_html.RendererOptions{
		Flags: md_html.CommonFlags | md_html.FootnoteNoHRTag | md_html.FootnoteReturnLinks,
		RenderNodeHook: func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
			if status, handled := hook(w, node, entering); handled {
				return status, handled
			}
			return mhtmlOpts.RenderHook(w, node, entering)
		},
	}

	return markdown.Render(doc, md_html.NewRenderer(opts)), info
}
