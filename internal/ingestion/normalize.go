package ingestion

import (
	"encoding/base64"
	"strings"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

const fileAttachmentType = "#microsoft.graph.fileAttachment"

// RawEmail is the body of the inbound email webhook.
type RawEmail struct {
	FromEmail   string          `json:"fromEmail"`
	Subject     string          `json:"subject"`
	Text        string          `json:"text"`
	HTML        string          `json:"html"`
	MessageID   string          `json:"messageId"`
	InReplyTo   string          `json:"inReplyTo"`
	Attachments []RawAttachment `json:"attachments"`
}

// RawAttachment carries base64 content in the inbound email webhook.
type RawAttachment struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
	IsInline    bool   `json:"isInline"`
	ContentID   string `json:"contentId"`
}

// Normalize converts the webhook body to the canonical inbound shape.
// Attachments whose content is not valid base64 are dropped.
func (r RawEmail) Normalize() domain.InboundMessage {
	msg := domain.InboundMessage{
		FromEmail: normalizeAddress(r.FromEmail),
		Subject:   strings.TrimSpace(r.Subject),
		Text:      r.Text,
		HTML:      r.HTML,
		MessageID: strings.TrimSpace(r.MessageID),
		InReplyTo: firstReference(r.InReplyTo),
	}
	for _, a := range r.Attachments {
		content, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			FileName:    a.FileName,
			ContentType: a.ContentType,
			Size:        int64(len(content)),
			IsInline:    a.IsInline,
			ContentID:   a.ContentID,
			Content:     content,
		})
	}
	return msg
}

// NormalizeGraphMessage converts a fetched Graph message. Only file
// attachments are kept, inline or not.
func NormalizeGraphMessage(m *GraphMessage) domain.InboundMessage {
	msg := domain.InboundMessage{
		FromEmail: normalizeAddress(m.From.EmailAddress.Address),
		Subject:   strings.TrimSpace(m.Subject),
		MessageID: strings.TrimSpace(m.InternetMessageID),
		InReplyTo: firstReference(graphHeader(m, "In-Reply-To")),
	}
	if strings.EqualFold(m.Body.ContentType, "html") {
		msg.HTML = m.Body.Content
	} else {
		msg.Text = m.Body.Content
	}
	for _, a := range m.Attachments {
		if a.ODataType != fileAttachmentType {
			continue
		}
		content, err := base64.StdEncoding.DecodeString(a.ContentBytes)
		if err != nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			FileName:    a.Name,
			ContentType: a.ContentType,
			Size:        int64(len(content)),
			IsInline:    a.IsInline,
			ContentID:   a.ContentID,
			Content:     content,
		})
	}
	return msg
}

func graphHeader(m *GraphMessage, name string) string {
	for _, h := range m.InternetMessageHeaders {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// firstReference keeps the first message id of a header that may list several.
func firstReference(v string) string {
	fields := strings.Fields(strings.TrimSpace(v))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func normalizeAddress(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.LastIndex(v, "<"); i >= 0 && strings.HasSuffix(v, ">") {
		v = v[i+1 : len(v)-1]
	}
	return strings.ToLower(strings.TrimSpace(v))
}
