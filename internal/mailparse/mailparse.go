// Package mailparse turns raw inbound email into plain reply text and
// recovers the report id from the correlation address.
package mailparse

import (
	"bytes"
	"errors"
	"io"
	"log"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

const (
	rawFallbackLen = 2000
	maxPartDepth   = 5
)

var correlationAddress = regexp.MustCompile(`^[^+@\s]+\+([0-9A-Fa-f-]{36})@[^@\s]+$`)

// ExtractReportID returns the report id carried in a local+<uuid>@domain
// recipient. Display-name forms and address lists are accepted.
func ExtractReportID(recipient string) (string, bool) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", false
	}

	candidates := []string{recipient}
	if list, err := mail.ParseAddressList(recipient); err == nil {
		candidates = candidates[:0]
		for _, a := range list {
			candidates = append(candidates, a.Address)
		}
	}

	for _, c := range candidates {
		m := correlationAddress.FindStringSubmatch(strings.TrimSpace(c))
		if m == nil {
			continue
		}
		id, err := uuid.Parse(m[1])
		if err != nil {
			continue
		}
		return id.String(), true
	}
	return "", false
}

// FromAddress returns the address of the From header, or "" if absent.
func FromAddress(raw []byte) string {
	entity, _ := readEntity(raw)
	if entity == nil {
		return ""
	}
	h := mail.Header{Header: entity.Header}
	list, err := h.AddressList("From")
	if err == nil && len(list) > 0 {
		return list[0].Address
	}
	return strings.TrimSpace(h.Get("From"))
}

// ExtractText returns the plain-text body of a raw message. The first
// text/plain part wins, then the first text/html part (stripped). A message
// without a header/body separator yields its first 2000 characters.
func ExtractText(raw []byte) string {
	if headerEnd(raw) < 0 {
		return fallback(raw)
	}

	entity, _ := readEntity(raw)
	if entity == nil {
		return fallback(raw)
	}

	mediaType, _ := contentType(entity.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		body, err := io.ReadAll(entity.Body)
		if err != nil {
			return fallback(raw)
		}
		text := normalizeNewlines(string(body))
		if mediaType == "text/html" {
			return StripHTML(text)
		}
		return text
	}

	plain, html := walk(entity)
	switch {
	case plain != nil:
		return *plain
	case html != nil:
		return StripHTML(*html)
	default:
		return fallback(raw)
	}
}

var errPlainFound = errors.New("text/plain part found")

// walk scans the part tree depth first. It stops at the first text/plain
// part and otherwise remembers the first text/html part. Parts are already
// transfer-decoded and converted to UTF-8 by the reader.
func walk(entity *message.Entity) (plain, html *string) {
	err := entity.Walk(func(path []int, part *message.Entity, err error) error {
		if part == nil || len(path) > maxPartDepth {
			return nil
		}
		mediaType, _ := contentType(part.Header.Get("Content-Type"))
		if mediaType != "text/plain" && (mediaType != "text/html" || html != nil) {
			return nil
		}

		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			return nil
		}
		text := normalizeNewlines(string(body))
		if mediaType == "text/html" {
			html = &text
			return nil
		}
		plain = &text
		return errPlainFound
	})
	if err != nil && !errors.Is(err, errPlainFound) {
		log.Printf("[Mail] multipart walk stopped early: %v", err)
	}
	return plain, html
}

// readEntity parses raw with the MIME reader. When the header block is
// malformed the lines that are not fields are dropped and the message is
// read again, so the body still gets its declared decoding. A non-nil
// entity is usable even if err reports an unknown charset or encoding.
func readEntity(raw []byte) (*message.Entity, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err == nil || message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
		return entity, err
	}

	end := headerEnd(raw)
	if end < 0 {
		return nil, err
	}
	body := raw[end:]
	if bytes.HasPrefix(body, []byte("\r\n")) {
		body = body[2:]
	} else {
		body = body[1:]
	}
	cleaned := append(cleanHeader(raw[:end]), body...)
	entity, err = message.Read(bytes.NewReader(cleaned))
	if err == nil || message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
		return entity, err
	}
	return nil, err
}

// cleanHeader keeps "Name: value" lines and their folded continuations.
func cleanHeader(header []byte) []byte {
	var out bytes.Buffer
	keep := false
	for _, line := range strings.Split(strings.ReplaceAll(string(header), "\r\n", "\n"), "\n") {
		switch {
		case line == "":
			continue
		case line[0] == ' ' || line[0] == '\t':
			if !keep {
				continue
			}
		default:
			keep = strings.IndexByte(line, ':') > 0 && !strings.ContainsAny(line[:strings.IndexByte(line, ':')], " \t")
			if !keep {
				continue
			}
		}
		out.WriteString(line)
		out.WriteString("\r\n")
	}
	return out.Bytes()
}

func contentType(header string) (string, map[string]string) {
	if header == "" {
		return "text/plain", map[string]string{}
	}
	mediaType, params, err := mime.ParseMediaType(header)
	if err != nil {
		// Keep whatever precedes the first parameter.
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(header, ";", 2)[0]))
		return mediaType, map[string]string{}
	}
	return strings.ToLower(mediaType), params
}

var (
	lineBreakTag    = regexp.MustCompile(`(?i)<br\s*/?>`)
	paragraphEndTag = regexp.MustCompile(`(?i)</p\s*>`)
	invisibleBlock  = regexp.MustCompile(`(?is)<(?:style|script|head)[^>]*>.*?</(?:style|script|head)\s*>`)
	anyTag          = regexp.MustCompile(`(?s)<[^>]*>`)
	extraNewlines   = regexp.MustCompile(`\n{3,}`)
	entities        = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`)
)

// StripHTML reduces an HTML body to readable text.
func StripHTML(html string) string {
	s := normalizeNewlines(html)
	s = invisibleBlock.ReplaceAllString(s, "")
	s = lineBreakTag.ReplaceAllString(s, "\n")
	s = paragraphEndTag.ReplaceAllString(s, "\n\n")
	s = anyTag.ReplaceAllString(s, "")
	s = entities.Replace(s)
	s = extraNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

func headerEnd(raw []byte) int {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return i
	}
	return bytes.Index(raw, []byte("\n\n"))
}

func fallback(raw []byte) string {
	s := string(raw)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	if utf8.RuneCountInString(s) <= rawFallbackLen {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string([]rune(s)[:rawFallbackLen]))
}
