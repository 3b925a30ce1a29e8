package annotate

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// DefaultAttr and DefaultValue mark a container whose text is annotated:
	// <div data-decorate="words">...</div>.
	DefaultAttr  = "data-decorate"
	DefaultValue = "words"
	// DefaultWordClass is the class given to the element wrapping each word.
	DefaultWordClass = "word"
	// KeyAttr carries the normalized key on a word element.
	KeyAttr = "data-word"
)

// Region is one annotatable container. Blocks holds one entry per
// non-whitespace text node inside it, in document order.
type Region struct {
	Tag    string
	ID     string
	Blocks []AnnotatedContent
}

// Tokens returns every word token in the region.
func (r Region) Tokens() []WordToken {
	var out []WordToken
	for _, b := range r.Blocks {
		out = append(out, b.Tokens()...)
	}
	return out
}

// Document is annotated markup. The underlying tree has every word wrapped
// in its own element so it can be rendered back out with Render.
type Document struct {
	Regions []Region

	roots []*html.Node
}

// Tokens returns every word token in the document, region by region.
func (d *Document) Tokens() []WordToken {
	if d == nil {
		return nil
	}
	var out []WordToken
	for _, r := range d.Regions {
		out = append(out, r.Tokens()...)
	}
	return out
}

// Render writes the annotated markup.
func (d *Document) Render(w io.Writer) error {
	if d == nil {
		return nil
	}
	bw := bufio.NewWriter(w)
	for _, n := range d.roots {
		if err := html.Render(bw, n); err != nil {
			return fmt.Errorf("render: %w", err)
		}
	}
	return bw.Flush()
}

// HTML returns the rendered markup as a string.
func (d *Document) HTML() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// Annotator finds opted-in containers in markup and annotates their text.
type Annotator struct {
	Attr      string
	Value     string
	WordClass string
}

// New returns an Annotator using the data-decorate="words" marker.
func New() *Annotator {
	return &Annotator{
		Attr:      DefaultAttr,
		Value:     DefaultValue,
		WordClass: DefaultWordClass,
	}
}

// AnnotateHTML annotates markup with the default Annotator.
func AnnotateHTML(r io.Reader) (*Document, error) {
	return New().Annotate(r)
}

// Annotate parses markup and annotates every flagged container. Markup with
// no flagged container yields an empty document; only read errors are
// returned.
func (a *Annotator) Annotate(r io.Reader) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	roots, err := parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}

	doc := &Document{roots: roots}
	for _, root := range roots {
		a.collect(root, doc)
	}
	return doc, nil
}

// parse treats input as a full document only when it looks like one, so
// fragments render back without an added html/head/body skeleton.
func parse(src []byte) ([]*html.Node, error) {
	src = bytes.TrimPrefix(src, []byte("\ufeff"))
	if isDocument(src) {
		n, err := html.Parse(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		return []*html.Node{n}, nil
	}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	return html.ParseFragment(bytes.NewReader(src), body)
}

// isDocument reports whether the first markup after any leading comments,
// processing instructions and whitespace opens a document.
func isDocument(src []byte) bool {
	rest := src
	for {
		rest = bytes.TrimLeft(rest, " \t\r\n\f")
		var end []byte
		switch {
		case bytes.HasPrefix(rest, []byte("<!--")):
			end = []byte("-->")
		case bytes.HasPrefix(rest, []byte("<?")):
			end = []byte(">")
		}
		if end == nil {
			break
		}
		i := bytes.Index(rest, end)
		if i < 0 {
			return false
		}
		rest = rest[i+len(end):]
	}

	head := strings.ToLower(string(rest[:min(len(rest), 16)]))
	for _, p := range []string{"<!doctype", "<html", "<head"} {
		if !strings.HasPrefix(head, p) {
			continue
		}
		// <header> is a fragment.
		next := strings.TrimPrefix(head, p)
		return next == "" || strings.ContainsAny(next[:1], " \t\r\n\f/>")
	}
	return false
}

// collect visits n in document order and annotates each flagged element.
func (a *Annotator) collect(n *html.Node, doc *Document) {
	if n.Type == html.ElementNode && a.flagged(n) {
		region := Region{Tag: n.Data, ID: attr(n, "id")}
		a.annotateRegion(n, &region)
		doc.Regions = append(doc.Regions, region)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		a.collect(c, doc)
	}
}

func (a *Annotator) annotateRegion(region *html.Node, out *Region) {
	var texts []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				if strings.TrimSpace(c.Data) != "" {
					texts = append(texts, c)
				}
			case html.ElementNode:
				// Nested flagged containers are their own region.
				if a.flagged(c) || skipText(c) {
					continue
				}
				walk(c)
			}
		}
	}
	walk(region)

	for _, t := range texts {
		if a.isWordElement(t.Parent) && isSingleWord(t.Data) {
			out.Blocks = append(out.Blocks, AnnotatedContent{{Kind: Word, Text: t.Data, Key: Normalize(t.Data)}})
			continue
		}
		content := Tokenize(t.Data)
		out.Blocks = append(out.Blocks, content)
		a.replace(t, content)
	}
}

// replace swaps text node t for the segments of content, wrapping each word.
func (a *Annotator) replace(t *html.Node, content AnnotatedContent) {
	parent := t.Parent
	for _, s := range content {
		if s.Kind == Passthrough {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: s.Text}, t)
			continue
		}
		span := &html.Node{
			Type:     html.ElementNode,
			Data:     "span",
			DataAtom: atom.Span,
			Attr: []html.Attribute{
				{Key: "class", Val: a.WordClass},
				{Key: KeyAttr, Val: s.Key},
			},
		}
		span.AppendChild(&html.Node{Type: html.TextNode, Data: s.Text})
		parent.InsertBefore(span, t)
	}
	parent.RemoveChild(t)
}

func (a *Annotator) flagged(n *html.Node) bool {
	for _, at := range n.Attr {
		if at.Namespace == "" && at.Key == a.Attr && at.Val == a.Value {
			return true
		}
	}
	return false
}

// isWordElement reports whether n already isolates a single word.
func (a *Annotator) isWordElement(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode || n.DataAtom != atom.Span {
		return false
	}
	if _, ok := lookupAttr(n, KeyAttr); !ok {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == a.WordClass {
			return true
		}
	}
	return false
}

// skipText reports elements whose text is never prose. Ruby annotations
// (<rt>, <rp>) repeat the base text and would count twice.
func skipText(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Template, atom.Noscript, atom.Textarea, atom.Rt, atom.Rp:
		return true
	}
	return false
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, at := range n.Attr {
		if at.Namespace == "" && at.Key == key {
			return at.Val, true
		}
	}
	return "", false
}
