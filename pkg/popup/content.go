// Package popup builds the HTML fragment shown inside a map popup.
package popup

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"wikimap/pkg/model"
)

// Class names shared with the browser stylesheet.
const (
	ClassContainer = "wikimap-popup"
	ClassClose     = "wikimap-popup-close"
	ClassTitle     = "wikimap-popup-title"
	ClassThumb     = "wikimap-popup-thumb"
)

// interactive lists the elements that keep receiving pointer events.
// Everything else lets wheel and drag gestures fall through to the map.
var interactive = map[atom.Atom]bool{
	atom.A:      true,
	atom.Img:    true,
	atom.Button: true,
}

// Render returns the popup fragment for f.
func Render(f *model.Feature) (string, error) {
	root := Build(f)

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", fmt.Errorf("render popup %d: %w", f.PageID, err)
	}
	return buf.String(), nil
}

// Build assembles the popup DOM tree for f.
func Build(f *model.Feature) *html.Node {
	root := element(atom.Div,
		attr("class", ClassContainer),
		attr("data-pageid", strconv.FormatInt(f.PageID, 10)),
	)

	closeBtn := element(atom.Button,
		attr("type", "button"),
		attr("class", ClassClose),
		attr("aria-label", "Close"),
		attr("data-action", "close"),
	)
	closeBtn.AppendChild(text("×"))
	root.AppendChild(closeBtn)

	if f.ThumbURL != "" {
		img := element(atom.Img,
			attr("class", ClassThumb),
			attr("src", f.ThumbURL),
			attr("alt", f.Title),
			attr("loading", "lazy"),
		)
		if f.ThumbWidth > 0 && f.ThumbHeight > 0 {
			img.Attr = append(img.Attr,
				attr("width", strconv.Itoa(f.ThumbWidth)),
				attr("height", strconv.Itoa(f.ThumbHeight)),
			)
		}
		root.AppendChild(link(f.URL, img))
	}

	title := element(atom.Div, attr("class", ClassTitle))
	if f.URL != "" {
		title.AppendChild(link(f.URL, text(f.Title)))
	} else {
		title.AppendChild(text(f.Title))
	}
	root.AppendChild(title)

	ApplyPointerEvents(root)
	return root
}

// ApplyPointerEvents disables pointer events on n and its descendants,
// re-enabling them only on interactive elements (links, images, buttons).
func ApplyPointerEvents(n *html.Node) {
	if n.Type == html.ElementNode {
		value := "none"
		if interactive[n.DataAtom] {
			value = "auto"
		}
		setStyle(n, "pointer-events", value)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		ApplyPointerEvents(c)
	}
}

func link(href string, child *html.Node) *html.Node {
	if href == "" {
		return child
	}
	a := element(atom.A,
		attr("href", href),
		attr("target", "_blank"),
		attr("rel", "noopener noreferrer"),
	)
	a.AppendChild(child)
	return a
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

// setStyle sets a single CSS property in the element's style attribute.
func setStyle(n *html.Node, prop, value string) {
	decl := prop + ":" + value
	for i, a := range n.Attr {
		if a.Key != "style" {
			continue
		}
		var kept []string
		for _, part := range strings.Split(a.Val, ";") {
			part = strings.TrimSpace(part)
			if part == "" || strings.HasPrefix(part, prop+":") {
				continue
			}
			kept = append(kept, part)
		}
		n.Attr[i].Val = strings.Join(append(kept, decl), ";")
		return
	}
	n.Attr = append(n.Attr, attr("style", decl))
}
