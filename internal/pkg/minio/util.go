package minio

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
)

// TranscriptStore 聊天记录对象存储
type TranscriptStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewTranscriptStore(client *minio.Client, bucket, prefix string) *TranscriptStore {
	return &TranscriptStore{client: client, bucket: bucket, prefix: prefix}
}

// ObjectKey transcripts/2026/03/<sessionID>.txt
func (s *TranscriptStore) ObjectKey(sessionID string, createdAt time.Time) string {
	return path.Join(s.prefix, createdAt.UTC().Format("2006/01"), sessionID+".txt")
}

// Upload 上传文件到MinIO
func (s *TranscriptStore) Upload(ctx context.Context, objectName string, content []byte, contentType string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("minio client is not initialized")
	}
	info, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return info.Key, nil
}

// PresignedURL 生成限时下载链接
func (s *TranscriptStore) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("minio client is not initialized")
	}
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf(`attachment; filename="%s"`, path.Base(objectName)))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, params)
	if err != nil {
		return "", fmt.Errorf("failed to presign file: %w", err)
	}
	return u.String(), nil
}
