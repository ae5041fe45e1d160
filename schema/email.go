package schema

import (
	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/xchain/internal/wire"
)

// CategoryEmail carries a mail message addressed to the tx recipients.
const CategoryEmail = "EMAIL"

// Body formats accepted by EmailBody.Format. Empty means text.
const (
	FormatText = "text"
	FormatHTML = "html"
)

type EmailBody struct {
	Content string `json:"content"`
	Format  string `json:"format"`
}

type Attachment struct {
	Filename string `json:"filename"`
	Type     string `json:"type"`
	Content  []byte `json:"content"`
}

type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Email is the EMAIL payload.
type Email struct {
	Subject     string       `json:"subject"`
	Body        EmailBody    `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Headers     []Header     `json:"headers,omitempty"`
}

// EmailSchema returns the EMAIL schema.
func EmailSchema() Schema {
	return typed[Email, *Email]{category: CategoryEmail, unmarshal: unmarshalEmail}
}

func (m *Email) validate(category string) error {
	if m.Subject == "" {
		return invalid(category, "subject is required")
	}
	switch m.Body.Format {
	case "", FormatText, FormatHTML:
	default:
		return invalid(category, "body.format %q must be %q or %q", m.Body.Format, FormatText, FormatHTML)
	}
	for i, a := range m.Attachments {
		if a.Filename == "" {
			return invalid(category, "attachments[%d].filename is required", i)
		}
	}
	for i, h := range m.Headers {
		if h.Key == "" {
			return invalid(category, "headers[%d].key is required", i)
		}
	}
	return nil
}

func (m *Email) marshal() []byte {
	var b []byte
	b = wire.AppendString(b, 1, m.Subject)

	var body []byte
	body = wire.AppendString(body, 1, m.Body.Content)
	body = wire.AppendString(body, 2, m.Body.Format)
	b = wire.AppendMessage(b, 2, body)

	for _, a := range m.Attachments {
		var ab []byte
		ab = wire.AppendString(ab, 1, a.Filename)
		ab = wire.AppendString(ab, 2, a.Type)
		ab = wire.AppendBytes(ab, 3, a.Content)
		b = wire.AppendMessage(b, 3, ab)
	}
	for _, h := range m.Headers {
		var hb []byte
		hb = wire.AppendString(hb, 1, h.Key)
		hb = wire.AppendString(hb, 2, h.Value)
		b = wire.AppendMessage(b, 4, hb)
	}
	return b
}

func unmarshalEmail(b []byte) (Email, error) {
	var m Email
	err := wire.Walk(b, CategoryEmail, func(num protowire.Number, typ protowire.Type, r *wire.Reader) error {
		if num < 1 || num > 4 {
			return r.Skip(num, typ)
		}
		if num == 1 {
			var err error
			m.Subject, err = r.String(num, typ)
			return err
		}
		raw, err := r.Bytes(num, typ)
		if err != nil {
			return err
		}
		switch num {
		case 2:
			m.Body, err = unmarshalBody(raw)
		case 3:
			var a Attachment
			if a, err = unmarshalAttachment(raw); err == nil {
				m.Attachments = append(m.Attachments, a)
			}
		case 4:
			var h Header
			if h, err = unmarshalHeader(raw); err == nil {
				m.Headers = append(m.Headers, h)
			}
		}
		return err
	})
	return m, err
}

func unmarshalBody(b []byte) (EmailBody, error) {
	var body EmailBody
	err := wire.Walk(b, "EmailBody", func(num protowire.Number, typ protowire.Type, r *wire.Reader) error {
		var err error
		switch num {
		case 1:
			body.Content, err = r.String(num, typ)
		case 2:
			body.Format, err = r.String(num, typ)
		default:
			err = r.Skip(num, typ)
		}
		return err
	})
	return body, err
}

func unmarshalAttachment(b []byte) (Attachment, error) {
	var a Attachment
	err := wire.Walk(b, "Attachment", func(num protowire.Number, typ protowire.Type, r *wire.Reader) error {
		var err error
		switch num {
		case 1:
			a.Filename, err = r.String(num, typ)
		case 2:
			a.Type, err = r.String(num, typ)
		case 3:
			a.Content, err = r.Bytes(num, typ)
		default:
			err = r.Skip(num, typ)
		}
		return err
	})
	return a, err
}

func unmarshalHeader(b []byte) (Header, error) {
	var h Header
	err := wire.Walk(b, "Header", func(num protowire.Number, typ protowire.Type, r *wire.Reader) error {
		var err error
		switch num {
		case 1:
			h.Key, err = r.String(num, typ)
		case 2:
			h.Value, err = r.String(num, typ)
		default:
			err = r.Skip(num, typ)
		}
		return err
	})
	return h, err
}
