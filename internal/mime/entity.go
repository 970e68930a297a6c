package mime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/jhillyerd/enmime"
)

const maxPartDepth = 32

// tolerable reports whether a go-message error still left a usable entity.
func tolerable(err error) bool {
	return err == nil || message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

// entityNode is a fully-read snapshot of a go-message entity.
type entityNode struct {
	mediaType string
	charset   string
	multipart bool
	parts     []Node
	body      []byte
	err       error
}

func (n *entityNode) IsMultipart() bool        { return n.multipart }
func (n *entityNode) Parts() []Node            { return n.parts }
func (n *entityNode) ContentType() string      { return n.mediaType }
func (n *entityNode) Charset() string          { return n.charset }
func (n *entityNode) Payload() ([]byte, error) { return n.body, n.err }

// readEntity drains e into an entityNode. Multipart bodies are streamed,
// so children have to be read in order before moving on.
func readEntity(e *message.Entity, depth int) *entityNode {
	n := &entityNode{mediaType: ContentTypePlain}
	if t, params, err := e.Header.ContentType(); err == nil && t != "" {
		n.mediaType = strings.ToLower(t)
		n.charset = params["charset"]
	}

	if mr := e.MultipartReader(); mr != nil {
		n.multipart = true
		if depth >= maxPartDepth {
			n.err = fmt.Errorf("multipart nesting deeper than %d", maxPartDepth)
			return n
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if part == nil || !tolerable(err) {
				n.err = fmt.Errorf("read part %d: %w", len(n.parts)+1, err)
				break
			}
			n.parts = append(n.parts, readEntity(part, depth+1))
		}
		return n
	}

	n.body, n.err = io.ReadAll(e.Body)
	return n
}

// envelopeNode adapts an enmime part tree.
type envelopeNode struct {
	p *enmime.Part
}

func (n envelopeNode) IsMultipart() bool {
	return n.p.FirstChild != nil || strings.HasPrefix(strings.ToLower(n.p.ContentType), "multipart/")
}

func (n envelopeNode) Parts() []Node {
	var out []Node
	for c := n.p.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, envelopeNode{p: c})
	}
	return out
}

func (n envelopeNode) ContentType() string {
	if n.p.ContentType == "" {
		return ContentTypePlain
	}
	return strings.ToLower(n.p.ContentType)
}

func (n envelopeNode) Charset() string          { return n.p.Charset }
func (n envelopeNode) Payload() ([]byte, error) { return n.p.Content, nil }

// tree is a parsed message: its MIME root plus header access.
type tree struct {
	root   Node
	values func(key string) []string
}

func (t tree) header(key string) string {
	if v := t.values(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// readTree parses raw with go-message and, when that fails outright, with
// enmime's more forgiving parser.
func readTree(raw []byte) (tree, error) {
	e, err := message.Read(bytes.NewReader(raw))
	if e != nil && tolerable(err) {
		return tree{root: readEntity(e, 0), values: e.Header.Values}, nil
	}

	root, fallbackErr := enmime.ReadParts(bytes.NewReader(raw))
	if fallbackErr != nil || root == nil {
		return tree{}, fmt.Errorf("parse message: %w", errors.Join(err, fallbackErr))
	}
	return tree{root: envelopeNode{p: root}, values: root.Header.Values}, nil
}
