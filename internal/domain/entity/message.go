package entity

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxContentLength = 5000

var (
	ErrEmptyMessage      = errors.New("message needs content or at least one attachment")
	ErrContentTooLong    = errors.New("message content exceeds 5000 characters")
	ErrAttachmentMissing = errors.New("attachment has no url")
)

type Attachment struct {
	OriginalName string `json:"originalName" firestore:"originalName"`
	FileName     string `json:"fileName" firestore:"fileName"`
	MimeType     string `json:"mimeType" firestore:"mimeType"`
	Size         int64  `json:"size" firestore:"size"`
	URL          string `json:"url" firestore:"url"`
}

type Message struct {
	ID             string       `json:"id" firestore:"id"`
	SenderID       string       `json:"sender" firestore:"sender"`
	ConversationID string       `json:"conversation" firestore:"conversation"`
	ReceiverID     string       `json:"receiver,omitempty" firestore:"receiver,omitempty"`
	Content        string       `json:"content,omitempty" firestore:"content,omitempty"`
	Attachments    []Attachment `json:"attachments" firestore:"attachments"`
	CreatedAt      time.Time    `json:"createdAt" firestore:"createdAt"`
}

// ValidateBody enforces the content-or-attachment rule.
func ValidateBody(content string, attachments []Attachment) error {
	if utf8.RuneCountInString(content) > MaxContentLength {
		return ErrContentTooLong
	}
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return ErrEmptyMessage
	}
	for _, a := range attachments {
		if a.URL == "" {
			return ErrAttachmentMissing
		}
	}
	return nil
}

func (m *Message) Validate() error {
	return ValidateBody(m.Content, m.Attachments)
}

func (m *Message) Preview() string {
	content := strings.TrimSpace(m.Content)
	if content == "" {
		if len(m.Attachments) > 0 {
			return m.Attachments[0].OriginalName
		}
		return ""
	}
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	return string([]rune(content)[:previewLength])
}
