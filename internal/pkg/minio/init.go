package minio

import (
	"Horizon/internal/api/config"
	"context"
	"fmt"
	log "log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	// Client 全局 MinIO 客户端实例
	Client *minio.Client
	// TranscriptBucket 聊天记录导出桶
	TranscriptBucket string
)

// Init 初始化 MinIO 客户端，导出桶不存在时创建
func Init() error {
	cfg := config.Cfg.MinIO

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize minio client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.TranscriptBucket)
	if err != nil {
		return fmt.Errorf("failed to connect to minio server: %w", err)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.TranscriptBucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create transcript bucket: %w", err)
		}
		log.Info("Created MinIO transcript bucket", "bucket", cfg.TranscriptBucket)
	}

	Client = client
	TranscriptBucket = cfg.TranscriptBucket
	return nil
}
