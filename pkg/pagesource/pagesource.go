// Package pagesource parses Android UI hierarchy dumps into a node tree.
package pagesource

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/devicelab-dev/tagscout/pkg/core"
)

// Node represents an element from page source XML.
type Node struct {
	Class       string
	ResourceID  string
	Text        string
	ContentDesc string
	Bounds      core.Bounds
	Clickable   bool
	Enabled     bool
	Displayed   bool
	Depth       int // depth in hierarchy, root children are 0
	Children    []*Node
}

// Parse parses Android UI hierarchy XML into a tree rooted at a synthetic
// hierarchy node.
// Supports both formats:
// - UIAutomator dump: uses class name as element tag (e.g., <android.widget.FrameLayout>)
// - Appium format: uses <node> elements
func Parse(xmlData string) (*Node, error) {
	decoder := xml.NewDecoder(strings.NewReader(xmlData))

	var root *Node
	var stack []*Node

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse page source: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "hierarchy" && root == nil {
				root = &Node{Class: "hierarchy", Depth: -1, Enabled: true, Displayed: true}
				stack = append(stack, root)
				continue
			}
			if len(stack) == 0 {
				// Element outside hierarchy, ignore its subtree shape
				continue
			}

			parent := stack[len(stack)-1]
			node := newNode(t)
			node.Depth = parent.Depth + 1
			parent.Children = append(parent.Children, node)
			stack = append(stack, node)

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("invalid page source: no hierarchy element found")
	}
	return root, nil
}

func newNode(t xml.StartElement) *Node {
	node := &Node{
		Class:     t.Name.Local, // Class name is the element tag
		Enabled:   true,
		Displayed: true,
	}

	for _, attr := range t.Attr {
		switch attr.Name.Local {
		case "text":
			node.Text = attr.Value
		case "resource-id":
			node.ResourceID = attr.Value
		case "content-desc":
			node.ContentDesc = attr.Value
		case "class":
			node.Class = attr.Value // Override if class attr exists
		case "bounds":
			node.Bounds = ParseBounds(attr.Value)
		case "enabled":
			node.Enabled = attr.Value != "false"
		case "displayed":
			node.Displayed = attr.Value != "false"
		case "clickable":
			node.Clickable = attr.Value == "true"
		}
	}
	return node
}

// VisitFunc is called for every node in encounter order. clickableAncestor is
// true when some ancestor of node is clickable.
type VisitFunc func(node *Node, clickableAncestor bool)

// Walk visits all nodes below root in document (pre-)order using an explicit
// stack. The root itself is not visited.
func Walk(root *Node, fn VisitFunc) {
	if root == nil {
		return
	}

	type frame struct {
		node              *Node
		clickableAncestor bool
	}

	stack := make([]frame, 0, len(root.Children))
	for i := len(root.Children) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: root.Children[i]})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		fn(f.node, f.clickableAncestor)

		under := f.clickableAncestor || f.node.Clickable
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: f.node.Children[i], clickableAncestor: under})
		}
	}
}

// Count returns the number of nodes below root.
func Count(root *Node) int {
	n := 0
	Walk(root, func(*Node, bool) { n++ })
	return n
}

// ParseBounds parses Android bounds string "[x1,y1][x2,y2]" to Bounds.
func ParseBounds(s string) core.Bounds {
	// Format: [x1,y1][x2,y2]
	s = strings.ReplaceAll(s, "][", ",")
	s = strings.Trim(s, "[]")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return core.Bounds{}
	}

	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return core.Bounds{}
		}
		v[i] = n
	}

	return core.Bounds{
		X:      v[0],
		Y:      v[1],
		Width:  v[2] - v[0],
		Height: v[3] - v[1],
	}
}
