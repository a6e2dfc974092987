package wire

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Parse decodes one serialized stanza into an element tree. Namespace
// declarations are kept as plain xmlns attributes so inbound elements can
// be inspected the same way built ones are.
func Parse(data []byte) (*Element, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var root *Element
	var stack []*Element

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed stanza: %w", err)
		}

		switch tok := token.(type) {
		case xml.StartElement:
			el := New(tok.Name.Local, nil)
			for _, attr := range tok.Attr {
				el.Attrs[attrKey(attr.Name)] = attr.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("malformed stanza: multiple root elements")
				}
				root = el
			} else {
				stack[len(stack)-1].AddChild(el)
			}
			stack = append(stack, el)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("malformed stanza: unbalanced end tag")
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) > 0 {
				text := string(tok)
				if strings.TrimSpace(text) != "" {
					stack[len(stack)-1].Text += text
				}
			}
		}
	}

	if root == nil {
		return nil, errors.New("malformed stanza: no root element")
	}
	if len(stack) != 0 {
		return nil, errors.New("malformed stanza: unclosed element")
	}
	return root, nil
}

// attrKey reconstructs the literal attribute name from the decoder's
// namespace-split form.
func attrKey(name xml.Name) string {
	switch {
	case name.Space == "":
		return name.Local
	case name.Space == "xmlns":
		return "xmlns:" + name.Local
	default:
		return name.Space + ":" + name.Local
	}
}
