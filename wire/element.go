// Package wire implements the protocol codec: a tree-structured stanza
// element, a deterministic serializer and tokenizing parser, and pure
// builder functions for every message, presence, and query the client
// sends.
//
// Builders fail fast on missing required fields and never silently omit
// attributes. Correlation ids follow the "<operation>-<uuid>" scheme so
// async responses can be matched back to their request; the one exception
// is the outgoing chat message id, which is the application-level message
// id supplied by the caller.
package wire

import (
	"encoding/xml"
	"sort"
	"strings"
)

// Element is one node of a stanza tree: a tag with attributes, character
// data, and ordered children.
type Element struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Element
}

// New creates an element with the given name and attributes. A nil attrs
// map is allowed.
func New(name string, attrs map[string]string) *Element {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return &Element{Name: name, Attrs: attrs}
}

// Attr returns the value of an attribute, or "".
func (e *Element) Attr(key string) string {
	return e.Attrs[key]
}

// SetAttr sets an attribute and returns the element for chaining.
func (e *Element) SetAttr(key, value string) *Element {
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	e.Attrs[key] = value
	return e
}

// Namespace returns the element's xmlns attribute, or "".
func (e *Element) Namespace() string {
	return e.Attrs["xmlns"]
}

// AddChild appends a child and returns the parent for chaining.
func (e *Element) AddChild(child *Element) *Element {
	e.Children = append(e.Children, child)
	return e
}

// SetText sets the element's character data and returns it for chaining.
func (e *Element) SetText(text string) *Element {
	e.Text = text
	return e
}

// Child returns the first direct child with the given name, or nil.
func (e *Element) Child(name string) *Element {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildNS returns the first direct child with the given name and xmlns,
// or nil.
func (e *Element) ChildNS(name, ns string) *Element {
	for _, c := range e.Children {
		if c.Name == name && c.Namespace() == ns {
			return c
		}
	}
	return nil
}

// Find returns the first element with the given name anywhere in the
// subtree, depth first, or nil.
func (e *Element) Find(name string) *Element {
	if e.Name == name {
		return e
	}
	for _, c := range e.Children {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// ChildText returns the character data of the named direct child, or "".
func (e *Element) ChildText(name string) string {
	if c := e.Child(name); c != nil {
		return c.Text
	}
	return ""
}

// String serializes the element subtree as XML. Attributes are emitted in
// sorted key order so output is deterministic.
func (e *Element) String() string {
	var sb strings.Builder
	e.write(&sb)
	return sb.String()
}

func (e *Element) write(sb *strings.Builder) {
	sb.WriteByte('<')
	sb.WriteString(e.Name)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(escape(e.Attrs[k]))
		sb.WriteByte('"')
	}

	if e.Text == "" && len(e.Children) == 0 {
		sb.WriteString("/>")
		return
	}

	sb.WriteByte('>')
	if e.Text != "" {
		sb.WriteString(escape(e.Text))
	}
	for _, c := range e.Children {
		c.write(sb)
	}
	sb.WriteString("</")
	sb.WriteString(e.Name)
	sb.WriteByte('>')
}

func escape(s string) string {
	var sb strings.Builder
	if err := xml.EscapeText(&sb, []byte(s)); err != nil {
		return s
	}
	return sb.String()
}
