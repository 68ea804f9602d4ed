// Package fragment turns the HTML fragments heaven serves into text for the
// terminal. Fragments are sanitized before anything reads them.
package fragment

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{3}([0-9a-fA-F]{3})?$`)

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("table", "thead", "tbody", "tr", "td", "th", "b", "strong", "ul", "ol", "li", "h1", "h2", "h3", "h4", "div", "span", "p", "br", "button")
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https")
	p.AllowAttrs("colspan").Matching(bluemonday.Integer).OnElements("td", "th")
	p.AllowAttrs("id", "class").Globally()
	p.AllowStyles("background-color").Matching(hexColor).OnElements("table", "tr", "td", "th")
	return p
}

// Sanitize strips everything but the structure Render understands.
func Sanitize(src string) string {
	return policy.Sanitize(src)
}

var (
	boldStyle  = lipgloss.NewStyle().Bold(true)
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
	whitespace = regexp.MustCompile(`\s+`)
)

// Render draws a fragment as terminal text. Tables become lipgloss tables
// with their cell background colours kept; buttons are dropped. A width of
// zero leaves tables at their natural size.
func Render(src string, width int) string {
	body, err := parseBody(src)
	if err != nil {
		return whitespace.ReplaceAllString(src, " ")
	}
	r := renderer{width: width}
	return r.block(body, 0)
}

// Links returns the port labels linked from a fragment, in document order,
// each once.
func Links(src string) []string {
	body, err := parseBody(src)
	if err != nil {
		return nil
	}
	var labels []string
	seen := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if label, ok := portLabel(attr(n, "href")); ok && !seen[label] {
				seen[label] = true
				labels = append(labels, label)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
	return labels
}

// portLabel extracts label from hrefs of the form /port/{label}/.
func portLabel(href string) (string, bool) {
	rest, ok := strings.CutPrefix(href, "/port/")
	if !ok {
		return "", false
	}
	label, _, ok := strings.Cut(rest, "/")
	if !ok || label == "" {
		return "", false
	}
	return label, true
}

func parseBody(src string) (*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(Sanitize(src)), ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		ctx.AppendChild(n)
	}
	return ctx, nil
}

type renderer struct {
	width int
}

func (r renderer) block(n *html.Node, depth int) string {
	var parts []string
	var line strings.Builder
	flush := func() {
		if s := strings.TrimSpace(whitespace.ReplaceAllString(line.String(), " ")); s != "" {
			parts = append(parts, s)
		}
		line.Reset()
	}
	add := func(s string) {
		flush()
		if s != "" {
			parts = append(parts, s)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
			line.WriteString(c.Data)
		case c.Type != html.ElementNode:
		case c.DataAtom == atom.Button:
		case c.DataAtom == atom.Table:
			add(r.table(c, depth))
		case c.DataAtom == atom.Ul || c.DataAtom == atom.Ol:
			add(r.list(c, depth))
		case c.DataAtom == atom.H1 || c.DataAtom == atom.H2 || c.DataAtom == atom.H3 || c.DataAtom == atom.H4:
			add(boldStyle.Render(r.inline(c, depth)))
		case c.DataAtom == atom.Br:
			flush()
		case c.DataAtom == atom.B || c.DataAtom == atom.Strong:
			line.WriteString(" " + boldStyle.Render(r.inline(c, depth)) + " ")
		case c.DataAtom == atom.Div || c.DataAtom == atom.P:
			add(r.block(c, depth))
		default:
			line.WriteString(r.inline(c, depth))
		}
	}
	flush()
	return strings.Join(parts, "\n")
}

func (r renderer) inline(n *html.Node, depth int) string {
	return strings.ReplaceAll(r.block(n, depth), "\n", " ")
}

func (r renderer) list(n *html.Node, depth int) string {
	var items []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Li {
			items = append(items, "• "+r.block(c, depth))
		}
	}
	return strings.Join(items, "\n")
}

func (r renderer) table(n *html.Node, depth int) string {
	var rows [][]string
	var styles [][]lipgloss.Style
	tableBg := background(n)

	var collect func(*html.Node)
	collect = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Thead, atom.Tbody, atom.Tfoot:
				collect(c)
			case atom.Tr:
				rowBg := background(c)
				var cells []string
				var cellStyles []lipgloss.Style
				for td := c.FirstChild; td != nil; td = td.NextSibling {
					if td.Type != html.ElementNode || (td.DataAtom != atom.Td && td.DataAtom != atom.Th) {
						continue
					}
					s := cellStyle
					if bg := firstNonEmpty(background(td), rowBg, tableBg); bg != "" {
						s = s.Background(lipgloss.Color(bg)).Foreground(lipgloss.Color("#000000"))
					}
					cells = append(cells, r.block(td, depth+1))
					cellStyles = append(cellStyles, s)
				}
				if len(cells) > 0 {
					rows = append(rows, cells)
					styles = append(styles, cellStyles)
				}
			}
		}
	}
	collect(n)
	if len(rows) == 0 {
		return ""
	}

	t := table.New().
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row < 0 || row >= len(styles) || col >= len(styles[row]) {
				return cellStyle
			}
			return styles[row][col]
		})
	if depth > 0 {
		t = t.Border(lipgloss.HiddenBorder())
	} else {
		t = t.Border(lipgloss.RoundedBorder())
		if r.width > 0 {
			t = t.Width(r.width)
		}
	}
	return t.Render()
}

// background returns the element's background-color style value.
func background(n *html.Node) string {
	for _, decl := range strings.Split(attr(n, "style"), ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(prop) == "background-color" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
