package notion

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// maxRichText is Notion's per-item content limit.
const maxRichText = 2000

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// markdownToBlocks converts markdown into Notion block objects. Headings past
// level 3 collapse to heading_3; unsupported nodes become paragraphs.
func markdownToBlocks(md string) []any {
	src := []byte(strings.TrimSpace(md))
	blocks := []any{}
	if len(src) == 0 {
		return blocks
	}

	doc := markdown.Parser().Parse(text.NewReader(src))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		blocks = append(blocks, nodeToBlocks(n, src)...)
	}
	return blocks
}

func nodeToBlocks(n ast.Node, src []byte) []any {
	switch node := n.(type) {
	case *ast.Heading:
		level := min(node.Level, 3)
		kind := "heading_" + strconv.Itoa(level)
		return []any{block(kind, map[string]any{"rich_text": inlineText(node, src)})}

	case *ast.Paragraph, *ast.TextBlock:
		return []any{block("paragraph", map[string]any{"rich_text": inlineText(node, src)})}

	case *ast.List:
		var out []any
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			out = append(out, listItemToBlock(item, node.IsOrdered(), src))
		}
		return out

	case *ast.FencedCodeBlock:
		lang := string(node.Language(src))
		return []any{codeBlock(codeLines(node, src), lang)}

	case *ast.CodeBlock:
		return []any{codeBlock(codeLines(node, src), "")}

	case *ast.Blockquote:
		var rich []any
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			if len(rich) > 0 {
				rich = append(rich, richText("\n", annotations{}, ""))
			}
			rich = append(rich, inlineText(c, src)...)
		}
		return []any{block("quote", map[string]any{"rich_text": rich})}

	case *ast.ThematicBreak:
		return []any{block("divider", map[string]any{})}

	default:
		plain := plainText(n, src)
		if plain == "" {
			return nil
		}
		return []any{block("paragraph", map[string]any{"rich_text": []any{richText(plain, annotations{}, "")}})}
	}
}

func listItemToBlock(item ast.Node, ordered bool, src []byte) any {
	kind := "bulleted_list_item"
	if ordered {
		kind = "numbered_list_item"
	}

	var (
		rich     []any
		children []any
		checked  *bool
	)
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		switch c.(type) {
		case *ast.Paragraph, *ast.TextBlock:
			if box, ok := c.FirstChild().(*extast.TaskCheckBox); ok {
				v := box.IsChecked
				checked = &v
			}
			rich = append(rich, inlineText(c, src)...)
		default:
			children = append(children, nodeToBlocks(c, src)...)
		}
	}

	body := map[string]any{"rich_text": trimLeading(rich)}
	if checked != nil {
		kind = "to_do"
		body["checked"] = *checked
	}
	if len(children) > 0 {
		body["children"] = children
	}
	return block(kind, body)
}

func codeBlock(code, lang string) any {
	if lang == "" {
		lang = "plain text"
	}
	return block("code", map[string]any{
		"rich_text": []any{richText(strings.TrimRight(code, "\n"), annotations{}, "")},
		"language":  lang,
	})
}

func codeLines(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.String()
}

func block(kind string, body map[string]any) any {
	return map[string]any{"object": "block", "type": kind, kind: body}
}

type annotations struct {
	bold, italic, strikethrough, code bool
}

func richText(content string, a annotations, link string) map[string]any {
	t := map[string]any{"content": content}
	if link != "" {
		t["link"] = map[string]any{"url": link}
	}
	return map[string]any{
		"type": "text",
		"text": t,
		"annotations": map[string]any{
			"bold":          a.bold,
			"italic":        a.italic,
			"strikethrough": a.strikethrough,
			"code":          a.code,
		},
	}
}

// inlineText flattens the inline children of n into rich text items.
func inlineText(n ast.Node, src []byte) []any {
	out := []any{}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		out = appendInline(out, c, src, annotations{}, "")
	}
	return out
}

func appendInline(out []any, n ast.Node, src []byte, a annotations, link string) []any {
	switch node := n.(type) {
	case *ast.Text:
		s := string(node.Segment.Value(src))
		if node.SoftLineBreak() || node.HardLineBreak() {
			s += "\n"
		}
		return appendChunked(out, s, a, link)
	case *ast.String:
		return appendChunked(out, string(node.Value), a, link)
	case *ast.CodeSpan:
		a.code = true
		return appendChunked(out, plainText(node, src), a, link)
	case *ast.Emphasis:
		if node.Level >= 2 {
			a.bold = true
		} else {
			a.italic = true
		}
	case *extast.Strikethrough:
		a.strikethrough = true
	case *ast.Link:
		link = string(node.Destination)
	case *ast.AutoLink:
		return appendChunked(out, string(node.Label(src)), a, string(node.URL(src)))
	case *extast.TaskCheckBox:
		return out
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		out = appendInline(out, c, src, a, link)
	}
	return out
}

func appendChunked(out []any, s string, a annotations, link string) []any {
	if s == "" {
		return out
	}
	for len(s) > maxRichText {
		cut := maxRichText
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		out = append(out, richText(s[:cut], a, link))
		s = s[cut:]
	}
	return append(out, richText(s, a, link))
}

// trimLeading drops the space GFM leaves after a task checkbox.
func trimLeading(rich []any) []any {
	if len(rich) == 0 {
		return []any{}
	}
	first := rich[0].(map[string]any)
	t := first["text"].(map[string]any)
	t["content"] = strings.TrimLeft(t["content"].(string), " ")
	return rich
}

func plainText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}
