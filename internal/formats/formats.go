// Package formats classifies uploaded files and turns them into content
// that can be verified.
package formats

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"

	"infosage/internal/textutil"
)

// Kind is the coarse class of an upload.
type Kind string

const (
	KindText   Kind = "text"
	KindHTML   Kind = "html"
	KindBinary Kind = "binary"
)

// ErrTooLarge is returned when an upload exceeds the configured size.
var ErrTooLarge = errors.New("file too large")

// Upload is an uploaded file after detection.
type Upload struct {
	Name string
	MIME string
	Kind Kind
	// Text holds the extracted text for textual uploads, capped at the
	// configured character limit. Empty for binary uploads.
	Text string
}

// Detect returns the MIME type and kind of data.
func Detect(data []byte) (string, Kind) {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/html") {
			return mt.String(), KindHTML
		}
		if m.Is("text/plain") {
			return mt.String(), KindText
		}
	}
	return mt.String(), KindBinary
}

// Intake classifies data and extracts up to maxChars characters of text.
// Uploads larger than maxBytes are rejected with ErrTooLarge.
func Intake(name string, data []byte, maxBytes, maxChars int) (Upload, error) {
	if maxBytes > 0 && len(data) > maxBytes {
		return Upload{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(data), maxBytes)
	}

	mime, kind := Detect(data)
	up := Upload{Name: strings.TrimSpace(name), MIME: mime, Kind: kind}

	switch kind {
	case KindHTML:
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err == nil {
			doc.Find("script, style, noscript").Remove()
			up.Text = textutil.CollapseWhitespace(doc.Text())
		}
	case KindText:
		if utf8.Valid(data) {
			up.Text = strings.TrimSpace(string(data))
		} else {
			up.Kind = KindBinary
		}
	}
	up.Text = textutil.Truncate(up.Text, maxChars)
	return up, nil
}

// Content is what gets verified: the file name, followed by the extracted
// text when there is any.
func (u Upload) Content() string {
	if u.Text == "" {
		return u.Name
	}
	return u.Name + "\n\n" + u.Text
}
