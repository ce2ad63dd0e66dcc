package domain

// InboundMessage is the provider-neutral shape produced by ingestion and
// consumed by the thread resolver.
type InboundMessage struct {
	FromEmail   string
	Subject     string
	Text        string
	HTML        string
	MessageID   string
	InReplyTo   string
	Attachments []Attachment
}

// Body prefers the plain text part and falls back to HTML.
func (m InboundMessage) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.HTML
}
