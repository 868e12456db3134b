package ixbrl

import (
	"strings"

	"golang.org/x/net/html"
)

// HTMLText uses an HTML stringification algorithm geared towards reproducing
// the way an HTML node's text would display in a browser:
// - block nodes are wrapped with line returns
// - inline nodes have contiguous spaces collapsed down to one space
// - non-text nodes (e.g. HTML comments or text nodes between block nodes) are omitted
func HTMLText(nodes ...*html.Node) string {
	if nodes == nil {
		return ""
	}

	var textBuilder strings.Builder
	for _, node := range nodes {
		extractText(node, &textBuilder)
	}
	return strings.TrimSpace(textBuilder.String())
}

func isInlineNode(node *html.Node) bool {
	if node.Type != html.ElementNode {
		return true
	}
	switch node.Data {
	case "span", "em", "strong", "a", "br", "ix:nonfraction", "ix:nonnumeric":
		return true
	default:
		return false
	}
}

// extractText writes the text of node and its descendants to builder.
func extractText(node *html.Node, builder *strings.Builder) {
	if node == nil {
		return
	}

	if node.Type == html.TextNode {
		builder.WriteString(node.Data)
	}
	var cb strings.Builder
	allInlineChildren := onlyInlineChildren(node)
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if !allInlineChildren && child.Type == html.TextNode {
			continue
		}
		extractText(child, &cb)
	}
	if allInlineChildren {
		builder.WriteString(strings.Join(strings.Fields(cb.String()), " "))
	} else {
		builder.WriteString(cb.String())
	}
	if node.Type == html.ElementNode && !isInlineNode(node) {
		builder.WriteString("\n")
	}
}

func onlyInlineChildren(node *html.Node) bool {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if !isInlineNode(child) {
			return false
		}
	}
	return true
}

// FindElements returns the elements named tag below node whose class
// attribute contains class, in document order. An empty class matches any
// element named tag.
func FindElements(node *html.Node, tag, class string) []*html.Node {
	var found []*html.Node
	stack := []*html.Node{node}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		if n.Type == html.ElementNode && n.Data == tag && (class == "" || hasClass(n, class)) {
			found = append(found, n)
		}
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
	return found
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

// Title returns the text of the document's title element.
func Title(doc *html.Node) string {
	if titles := FindElements(doc, "title", ""); len(titles) > 0 {
		return HTMLText(titles[0])
	}
	return ""
}
