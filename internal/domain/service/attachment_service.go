package service

import (
	"context"
	"io"

	"coursehub/internal/domain/entity"
)

// UploadFile describes one file of a multipart send.
type UploadFile struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// AttachmentGateway stores uploaded bytes and hands back a durable URL.
type AttachmentGateway interface {
	Upload(ctx context.Context, conversationID string, file UploadFile) (*entity.Attachment, error)
	Delete(ctx context.Context, att *entity.Attachment) error
}
