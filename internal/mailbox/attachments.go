package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
)

// ErrAttachmentNotFound indicates that no part of the message carries
// the requested filename.
var ErrAttachmentNotFound = errors.New("attachment not found")

// Attachment describes one named leaf part of a message.
type Attachment struct {
	Filename    string
	ContentType string

	// IsPDF is true when the content type is application/pdf or the
	// filename ends in ".pdf" (case-insensitive).
	IsPDF bool
}

// ListAttachments fetches the full message and enumerates every MIME
// leaf part that carries a filename.
func (s *Session) ListAttachments(ctx context.Context, uid imap.UID, folder string) ([]Attachment, error) {
	raw, err := s.fetchRaw(ctx, uid, folder)
	if err != nil {
		return nil, err
	}
	atts, err := collectAttachments(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing message %d: %w", uid, err)
	}
	return atts, nil
}

// FetchAttachment fetches the full message and returns the decoded
// payload of the first leaf part whose filename exactly matches
// filename. ErrAttachmentNotFound when no part matches.
func (s *Session) FetchAttachment(ctx context.Context, uid imap.UID, filename, folder string) ([]byte, error) {
	raw, err := s.fetchRaw(ctx, uid, folder)
	if err != nil {
		return nil, err
	}
	data, err := findAttachment(raw, filename)
	if err != nil {
		if errors.Is(err, ErrAttachmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("parsing message %d: %w", uid, err)
	}
	return data, nil
}

// fetchRaw selects the folder and fetches the raw RFC 822 body of one
// message.
func (s *Session) fetchRaw(ctx context.Context, uid imap.UID, folder string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.selectFolder(folder); err != nil {
		return nil, err
	}

	section := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := s.client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})

	msg := fetchCmd.Next()
	if msg == nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("message %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("collecting message %d: %w", uid, err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("message %d has no body", uid)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("closing fetch for %d: %w", uid, err)
	}
	return raw, nil
}

// collectAttachments walks the MIME part tree of a raw message and
// records every leaf part that carries a filename.
func collectAttachments(raw []byte) ([]Attachment, error) {
	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, err
	}

	var atts []Attachment
	err = walkLeaves(ent, func(part *message.Entity) error {
		name := partFilename(part.Header)
		if name == "" {
			return nil
		}
		contentType, _, _ := part.Header.ContentType()
		atts = append(atts, Attachment{
			Filename:    name,
			ContentType: contentType,
			IsPDF:       isPDF(contentType, name),
		})
		return nil
	})
	if err != nil {
		return atts, err
	}
	return atts, nil
}

// findAttachment walks the MIME part tree and returns the payload of the
// first leaf part whose decoded filename equals filename.
func findAttachment(raw []byte, filename string) ([]byte, error) {
	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, err
	}

	var payload []byte
	found := false
	err = walkLeaves(ent, func(part *message.Entity) error {
		if found || partFilename(part.Header) != filename {
			return nil
		}
		data, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			return readErr
		}
		payload = data
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrAttachmentNotFound
	}
	return payload, nil
}

// walkLeaves visits every non-multipart part of the MIME tree in
// document order. Container (multipart) nodes are descended into, not
// visited.
func walkLeaves(ent *message.Entity, visit func(*message.Entity) error) error {
	mr := ent.MultipartReader()
	if mr == nil {
		return visit(ent)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := walkLeaves(part, visit); err != nil {
			return err
		}
	}
}

// partFilename returns the decoded filename of a part, preferring the
// Content-Disposition filename parameter over the Content-Type name
// parameter. Empty when the part is unnamed.
func partFilename(h message.Header) string {
	if _, params, err := h.ContentDisposition(); err == nil {
		if name := params["filename"]; name != "" {
			return decodeHeaderText(name)
		}
	}
	if _, params, err := h.ContentType(); err == nil {
		if name := params["name"]; name != "" {
			return decodeHeaderText(name)
		}
	}
	return ""
}

// decodeHeaderText decodes RFC 2047 encoded words, falling back to the
// raw text when a byte sequence cannot be decoded.
func decodeHeaderText(s string) string {
	dec := &mime.WordDecoder{CharsetReader: charset.Reader}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// isPDF classifies an attachment by content type or filename extension.
func isPDF(contentType, filename string) bool {
	return contentType == "application/pdf" ||
		strings.HasSuffix(strings.ToLower(filename), ".pdf")
}
