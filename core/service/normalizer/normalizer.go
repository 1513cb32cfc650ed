// Package normalizer turns a raw MIME blob
// into clean text and a body fingerprint.
package normalizer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"

	// Registers charset decoders (windows-1252, iso-8859-*, koi8-r, …)
	// used by mail.CreateReader when a part declares a non-UTF-8
	// charset.
	_ "github.com/emersion/go-message/charset"

	"github.com/kodelabs/mailrouter/core/port/out"
	"github.com/kodelabs/mailrouter/pkg/apperr"
	"github.com/kodelabs/mailrouter/pkg/logger"
)

// TextContentCeiling is the fixed truncation ceiling for assembled text.
const TextContentCeiling = 1000

type Service struct {
	broker out.Broker
	log    *logger.Logger
}

func NewService(broker out.Broker) *Service {
	return &Service{broker: broker, log: logger.Default().WithField("component", "normalizer")}
}

// HandleRaw implements port/in.NormalizerService for one raw_emails.v1
// message.
func (s *Service) HandleRaw(ctx context.Context, fields map[string]string) error {
	traceID := fields["trace_id"]
	rawB64 := fields["raw_email_b64"]

	raw, err := base64.StdEncoding.DecodeString(rawB64)
	if err != nil {
		s.log.WithField("trace_id", traceID).Warn("malformed base64 payload")
		return apperr.Malformed("base64.decode", err)
	}

	clean, err := ExtractText(raw)
	if err != nil {
		s.log.WithField("trace_id", traceID).Warn("unparseable MIME, dropping: %v", err)
		return apperr.Malformed("mime.parse", err)
	}

	clean = stripTrackers(clean)
	bodyHash := sha256Hex(clean)
	textContent := truncate(clean, TextContentCeiling)

	outFields := map[string]string{
		"trace_id":     traceID,
		"mailbox_id":   fields["mailbox_id"],
		"idemp_key":    fields["idemp_key"],
		"from":         fields["from"],
		"subject":      fields["subject"],
		"external_id":  fields["external_id"],
		"received_ts":  fields["received_ts"],
		"text_content": textContent,
		"body_hash":    bodyHash,
	}
	if _, err := s.broker.Append(ctx, out.StreamEmailsNormal, outFields); err != nil {
		return apperr.Transient("broker.append", err)
	}
	s.log.WithField("trace_id", traceID).WithField("idemp_key", fields["idemp_key"]).Info("normalized email")
	return nil
}

// ExtractText parses a raw RFC 5322 message and returns cleaned plain
// text: walk parts preferring text/plain; fall back to stripping an
// HTML part's tags when only text/html is present.
func ExtractText(raw []byte) (string, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}

	var plainParts, htmlParts []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := mime.ParseMediaType(h.Get("Content-Type"))
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		if ct == "text/html" {
			htmlParts = append(htmlParts, string(body))
		} else {
			plainParts = append(plainParts, string(body))
		}
	}

	if len(plainParts) > 0 {
		return collapseWhitespace(strings.Join(plainParts, "\n")), nil
	}
	if len(htmlParts) > 0 {
		return collapseWhitespace(stripHTML(strings.Join(htmlParts, "\n"))), nil
	}
	return "", fmt.Errorf("no text/plain or text/html part found")
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)
	trackingImgRe = regexp.MustCompile(`(?is)<img\b[^>]*(?:width="1"[^>]*height="1"|height="1"[^>]*width="1")[^>]*/?>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	urlUTMRe      = regexp.MustCompile(`(?i)https?://\S*[?&]utm_[a-z_]+=\S*`)
)

var namedEntities = map[string]string{
	"&nbsp;": " ",
	"&amp;":  "&",
	"&lt;":   "<",
	"&gt;":   ">",
	"&quot;": `"`,
}

// stripHTML removes <script>/<style> blocks and 1x1 tracking-pixel
// <img> tags before stripping all remaining tags — the pixel tag
// itself must go first, since generic tag-stripping below would
// otherwise erase the width/height attributes it matches on — then
// decodes the common HTML named entities.
func stripHTML(html string) string {
	html = scriptStyleRe.ReplaceAllString(html, "")
	html = trackingImgRe.ReplaceAllString(html, "")
	html = tagRe.ReplaceAllString(html, " ")
	for ent, repl := range namedEntities {
		html = strings.ReplaceAll(html, ent, repl)
	}
	return html
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// stripTrackers removes URLs carrying utm_ query parameters from the
// already-assembled plain text.
func stripTrackers(text string) string {
	text = urlUTMRe.ReplaceAllString(text, "")
	return collapseWhitespace(text)
}

func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
