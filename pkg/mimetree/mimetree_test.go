package mimetree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainTextPrefersDirectBody(t *testing.T) {
	root := &Part{
		MimeType: "text/html",
		Body:     []byte("<p>direct</p>"),
		Parts:    []*Part{{MimeType: "text/plain", Body: []byte("nested")}},
	}
	assert.Equal(t, "<p>direct</p>", PlainText(root))
}

func TestPlainTextFirstPlainLeafDepthFirst(t *testing.T) {
	root := &Part{
		MimeType: "multipart/mixed",
		Parts: []*Part{
			{
				MimeType: "multipart/alternative",
				Parts: []*Part{
					{MimeType: "text/html", Body: []byte("<b>html</b>")},
					{MimeType: "text/plain; charset=utf-8", Body: []byte("deep plain")},
				},
			},
			{MimeType: "text/plain", Body: []byte("shallow plain")},
		},
	}
	assert.Equal(t, "deep plain", PlainText(root))
}

func TestPlainTextSkipsAttachmentsAndEmpty(t *testing.T) {
	root := &Part{
		MimeType: "multipart/mixed",
		Parts: []*Part{
			{MimeType: "text/plain", Filename: "notes.txt", Body: []byte("attached")},
			{MimeType: "text/plain"},
			nil,
		},
	}
	assert.Equal(t, "", PlainText(root))
	assert.Equal(t, "", PlainText(nil))
}

const rawMultipart = "From: alice@example.com\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: Quarterly report\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Due Friday</p>\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Due Fri=\r\nday\r\n" +
	"--b1--\r\n"

func TestParseRawMessage(t *testing.T) {
	root, err := Parse(strings.NewReader(rawMultipart))
	require.NoError(t, err)

	assert.Equal(t, "multipart/alternative", root.MimeType)
	require.Len(t, root.Parts, 2)
	assert.Equal(t, "Due Friday", strings.TrimSpace(PlainText(root)))
}

func TestParseSinglePart(t *testing.T) {
	raw := "Subject: hi\r\nContent-Type: text/plain\r\n\r\nhello there"
	root, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "hello there", PlainText(root))
}
