package job

import (
	"Horizon/internal/model"
	"Horizon/internal/pkg/consts"
	"Horizon/internal/pkg/redis"
	"Horizon/internal/service"
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	archiveBatchSize = 100
	archiveTimeout   = 10 * time.Minute
)

// ArchiveSource 已关闭且未归档的会话
type ArchiveSource interface {
	ListClosedUnarchived(ctx context.Context, limit int64) ([]*model.ChatSession, error)
	MarkArchived(ctx context.Context, sessionID, objectKey string) error
}

// TranscriptArchiveJob 把已关闭会话的聊天记录导出到对象存储，多实例间用 Redis 锁互斥
type TranscriptArchiveJob struct {
	source      ArchiveSource
	transcripts service.TranscriptService
	rdb         *goredis.Client
}

func NewTranscriptArchiveJob(source ArchiveSource, transcripts service.TranscriptService, rdb *goredis.Client) *TranscriptArchiveJob {
	return &TranscriptArchiveJob{source: source, transcripts: transcripts, rdb: rdb}
}

func (s *TranscriptArchiveJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	token := uuid.NewString()
	ok, err := redis.TryLock(ctx, s.rdb, consts.ChatArchiveLock, token, archiveTimeout, 1)
	if err != nil {
		log.Error("acquire archive lock failed", "err", err)
		return
	}
	if !ok {
		log.Info("transcript archive already running elsewhere, skip")
		return
	}
	defer func() {
		if err := redis.UnLock(context.Background(), s.rdb, consts.ChatArchiveLock, token); err != nil {
			log.Warn("release archive lock failed", "err", err)
		}
	}()

	archived, err := s.archiveAll(ctx)
	if err != nil {
		log.Error("transcript archive job aborted", "archived", archived, "err", err)
		return
	}
	if archived > 0 {
		log.Info("transcript archive job finished", "archived", archived)
	}
}

// archiveAll 分批处理直到没有待归档会话
func (s *TranscriptArchiveJob) archiveAll(ctx context.Context) (int, error) {
	archived := 0
	skipped := make(map[string]struct{})
	for {
		sessions, err := s.source.ListClosedUnarchived(ctx, archiveBatchSize)
		if err != nil {
			return archived, err
		}
		progressed := false
		for _, session := range sessions {
			if _, ok := skipped[session.ID]; ok {
				continue
			}
			key, err := s.transcripts.Archive(ctx, session)
			if errors.Is(err, service.ErrTranscriptEmpty) {
				key = ""
			} else if err != nil {
				log.Warn("archive transcript failed", "sessionID", session.ID, "err", err)
				skipped[session.ID] = struct{}{}
				continue
			}
			if err = s.source.MarkArchived(ctx, session.ID, key); err != nil {
				log.Warn("mark session archived failed", "sessionID", session.ID, "err", err)
				skipped[session.ID] = struct{}{}
				continue
			}
			archived++
			progressed = true
		}
		if !progressed || len(sessions) < archiveBatchSize {
			return archived, nil
		}
	}
}
