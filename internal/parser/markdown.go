package parser

import (
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	markdownParser = goldmark.New().Parser()
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
)

// extractMarkdown parses content into a Markdown AST and keeps only the visible
// text: markup is dropped, links and images collapse to their label or alt text,
// and whitespace runs become single spaces.
func extractMarkdown(content []byte) (string, error) {
	source, _ := extractPlain(content)
	src := []byte(source)
	doc := markdownParser.Parse(text.NewReader(src))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			value := node.Segment.Value(src)
			// Backslash escapes are literal inside code spans.
			if _, inCode := node.Parent().(*ast.CodeSpan); !inCode {
				value = util.UnescapePunctuations(value)
			}
			b.Write(value)
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			writeLines(&b, n.Lines(), src)
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			var raw strings.Builder
			writeLines(&raw, node.Lines(), src)
			if node.HasClosure() {
				raw.Write(node.ClosureLine.Value(src))
			}
			b.WriteString(htmlTagPattern.ReplaceAllString(raw.String(), " "))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			// Inline tags carry no visible text.
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return collapseWhitespace(html.UnescapeString(b.String())), nil
}

func writeLines(b *strings.Builder, lines *text.Segments, src []byte) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
		b.WriteByte(' ')
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
