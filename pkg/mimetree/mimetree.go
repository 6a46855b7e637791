// Package mimetree walks a provider-neutral tree of message parts.
package mimetree

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// Part is one node of a message. Body holds decoded bytes.
type Part struct {
	MimeType string
	Filename string
	Body     []byte
	Parts    []*Part
}

// PlainText returns the text content of a message tree.
// The root's own body wins; otherwise the first text/plain leaf in
// depth-first order is used. Attachments are never considered.
func PlainText(root *Part) string {
	if root == nil {
		return ""
	}
	if len(root.Body) > 0 && root.Filename == "" {
		return string(root.Body)
	}
	if leaf := firstPlainLeaf(root.Parts); leaf != nil {
		return string(leaf.Body)
	}
	return ""
}

func firstPlainLeaf(parts []*Part) *Part {
	for _, p := range parts {
		if p == nil {
			continue
		}
		if len(p.Parts) > 0 {
			if found := firstPlainLeaf(p.Parts); found != nil {
				return found
			}
			continue
		}
		if isPlain(p.MimeType) && p.Filename == "" && len(p.Body) > 0 {
			return p
		}
	}
	return nil
}

func isPlain(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == "text/plain"
}

// Parse builds a tree from a raw RFC 5322 message. Transfer encodings are
// decoded and known charsets converted to UTF-8.
func Parse(r io.Reader) (*Part, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, err
	}
	return fromEntity(entity)
}

func fromEntity(e *message.Entity) (*Part, error) {
	mimeType, _, _ := e.Header.ContentType()
	if mimeType == "" {
		mimeType = "text/plain"
	}
	part := &Part{MimeType: mimeType}
	if disp, params, err := e.Header.ContentDisposition(); err == nil && strings.EqualFold(disp, "attachment") {
		part.Filename = params["filename"]
		if part.Filename == "" {
			part.Filename = "attachment"
		}
	}

	if mr := e.MultipartReader(); mr != nil {
		for {
			child, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				return nil, err
			}
			sub, err := fromEntity(child)
			if err != nil {
				return nil, err
			}
			part.Parts = append(part.Parts, sub)
		}
		return part, nil
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, e.Body); err != nil {
		return nil, err
	}
	part.Body = buf.Bytes()
	return part, nil
}
