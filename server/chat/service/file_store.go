package service

import (
	"bytes"
	"context"
	"image"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/minio/minio-go/v7"

	"voicechat_server/server/common/infra/object"
)

type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Fetch(ctx context.Context, key string) ([]byte, error)
}

type AttachmentStore interface {
	ObjectStore
	Thumbnail(ctx context.Context, key string) (string, error)
}

// FileStore persists raw attachment payloads in a MinIO bucket. The
// pipeline treats the payload as opaque; workers fetch it back by key.
type FileStore struct {
	client *minio.Client
	bucket string
}

func NewFileStore(client *minio.Client, bucket string) *FileStore {
	return &FileStore{client: client, bucket: bucket}
}

func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return object.PutBytes(ctx, s.client, s.bucket, key, data, contentType)
}

func (s *FileStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	return object.GetBytes(ctx, s.client, s.bucket, key)
}

// Thumbnail renders a 320x320 JPEG next to an image object and returns
// the thumbnail key.
func (s *FileStore) Thumbnail(ctx context.Context, key string) (string, error) {
	data, err := s.Fetch(ctx, key)
	if err != nil {
		return "", err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	thumb := imaging.Thumbnail(img, 320, 320, imaging.Lanczos)
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, imaging.JPEG); err != nil {
		return "", err
	}

	ext := path.Ext(key)
	thumbKey := strings.TrimSuffix(key, ext) + "_thumb.jpg"
	if err := s.Put(ctx, thumbKey, buf.Bytes(), "image/jpeg"); err != nil {
		return "", err
	}
	return thumbKey, nil
}
