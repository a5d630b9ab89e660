package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/service"
	"coursehub/pkg/errors"
)

// MemoryGateway keeps attachments in memory. It backs the memory store
// backend and tests.
type MemoryGateway struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
	maxSize int64
}

func NewMemoryGateway(baseURL string, maxSize int64) *MemoryGateway {
	return &MemoryGateway{
		objects: make(map[string][]byte),
		baseURL: baseURL,
		maxSize: maxSize,
	}
}

var _ service.AttachmentGateway = (*MemoryGateway)(nil)

func (g *MemoryGateway) Upload(_ context.Context, conversationID string, file service.UploadFile) (*entity.Attachment, error) {
	if file.Size > g.maxSize {
		return nil, errors.BadRequest(fmt.Sprintf("%s exceeds the %d byte limit", file.Name, g.maxSize), nil)
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
	data, err := io.ReadAll(io.LimitReader(body, g.maxSize+1))
	if err != nil {
		return nil, errors.BadRequest("Unreadable upload "+file.Name, err)
	}
	if int64(len(data)) > g.maxSize {
		return nil, errors.BadRequest(fmt.Sprintf("%s exceeds the %d byte limit", file.Name, g.maxSize), nil)
	}

	if blockedType(mime.String()) {
		return nil, errors.BadRequest("File type not allowed: "+mime.String(), nil)
	}

	name := fmt.Sprintf("chat/%s/%s%s", conversationID, uuid.New().String(), mime.Extension())

	g.mu.Lock()
	g.objects[name] = data
	g.mu.Unlock()

	return &entity.Attachment{
		OriginalName: displayName(file.Name),
		FileName:     name,
		MimeType:     mime.String(),
		Size:         int64(len(data)),
		URL:          g.baseURL + "/" + name,
	}, nil
}

func (g *MemoryGateway) Delete(_ context.Context, att *entity.Attachment) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.objects, att.FileName)
	return nil
}

// Len reports how many objects are stored.
func (g *MemoryGateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.objects)
}
