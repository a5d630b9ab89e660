package storage

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/service"
	"coursehub/pkg/errors"
	"coursehub/pkg/logger"
)

// sniffLen is how many leading bytes mimetype needs for detection.
const sniffLen = 3072

func blockedType(mime string) bool {
	switch mime {
	case "application/x-msdownload",
		"application/x-executable",
		"application/x-elf",
		"application/x-sh",
		"text/x-shellscript",
		"application/vnd.microsoft.portable-executable":
		return true
	}
	return false
}

type CloudStorageClient struct {
	client     *storage.Client
	bucketName string
	maxSize    int64
}

func NewCloudStorageClient(ctx context.Context, bucketName string, maxSize int64, opts ...option.ClientOption) (*CloudStorageClient, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &CloudStorageClient{
		client:     client,
		bucketName: bucketName,
		maxSize:    maxSize,
	}, nil
}

var _ service.AttachmentGateway = (*CloudStorageClient)(nil)

func (c *CloudStorageClient) Upload(ctx context.Context, conversationID string, file service.UploadFile) (*entity.Attachment, error) {
	if file.Size > c.maxSize {
		return nil, errors.BadRequest(fmt.Sprintf("%s exceeds the %d byte limit", file.Name, c.maxSize), nil)
	}

	src, err := file.Open()
	if err != nil {
		return nil, errors.BadRequest("Unreadable upload "+file.Name, err)
	}
	defer src.Close()

	body, mime, err := sniff(src)
	if err != nil {
		return nil, errors.BadRequest("Unreadable upload "+file.Name, err)
	}
	if blockedType(mime.String()) {
		return nil, errors.BadRequest("File type not allowed: "+mime.String(), nil)
	}

	objectName := path.Join("chat", conversationID, uuid.New().String()+mime.Extension())
	obj := c.client.Bucket(c.bucketName).Object(objectName)

	wc := obj.NewWriter(ctx)
	wc.ContentType = mime.String()
	wc.CacheControl = "private, max-age=86400"
	wc.ContentDisposition = fmt.Sprintf("inline; filename=%q", file.Name)

	written, err := io.Copy(wc, io.LimitReader(body, c.maxSize+1))
	if err != nil {
		wc.Close()
		return nil, errors.Upstream("Attachment storage unavailable", err)
	}
	if written > c.maxSize {
		wc.Close()
		c.deleteObject(ctx, objectName)
		return nil, errors.BadRequest(fmt.Sprintf("%s exceeds the %d byte limit", file.Name, c.maxSize), nil)
	}
	if err := wc.Close(); err != nil {
		return nil, errors.Upstream("Attachment storage unavailable", err)
	}

	logger.Debug("Stored attachment %s (%d bytes, %s)", objectName, written, mime.String())

	return &entity.Attachment{
		OriginalName: displayName(file.Name),
		FileName:     objectName,
		MimeType:     mime.String(),
		Size:         written,
		URL:          fmt.Sprintf("https://storage.googleapis.com/%s/%s", c.bucketName, objectName),
	}, nil
}

func (c *CloudStorageClient) Delete(ctx context.Context, att *entity.Attachment) error {
	return c.deleteObject(ctx, att.FileName)
}

func (c *CloudStorageClient) deleteObject(ctx context.Context, name string) error {
	err := c.client.Bucket(c.bucketName).Object(name).Delete(ctx)
	if err != nil && !stderrors.Is(err, storage.ErrObjectNotExist) {
		logger.Warn("Failed to delete attachment %s: %v", name, err)
		return err
	}
	return nil
}

func (c *CloudStorageClient) Close() error {
	return c.client.Close()
}

// sniff detects the content type from the head of r and returns a reader
// that still yields the full content.
func sniff(r io.Reader) (io.Reader, *mimetype.MIME, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, nil, err
	}
	head = head[:n]
	return io.MultiReader(bytes.NewReader(head), r), mimetype.Detect(head), nil
}

// displayName strips any client supplied directory from a file name.
func displayName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return path.Base(name)
}
