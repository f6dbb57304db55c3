package wire

import (
	"Horizon/internal/api"
	"Horizon/internal/api/config"
	"Horizon/internal/api/handler"
	"Horizon/internal/chat"
	"Horizon/internal/job"
	"Horizon/internal/pkg/cron"
	"Horizon/internal/pkg/es"
	"Horizon/internal/pkg/kafka"
	"Horizon/internal/pkg/minio"
	"Horizon/internal/pkg/mongo"
	"Horizon/internal/pkg/notify"
	"Horizon/internal/pkg/redis"
	"Horizon/internal/repository"
	"Horizon/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	CronMgr      *cron.Manager
	KafkaManager *kafka.ConsumerManager // kafka.enable=false 时为 nil
	closers      []func()
}

// Close 释放生产者等后台资源
func (a *ApplicationContainer) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func BuildApplication(db *gorm.DB, mongoDB *mongodrv.Database, rdb *goredis.Client, cfg *config.Config) (*ApplicationContainer, error) {
	app := &ApplicationContainer{DB: db}

	// 后台账号
	adminRepo := repository.NewAdminRepo(db)
	if err := adminRepo.AutoMigrate(); err != nil {
		return nil, err
	}
	adminService := service.NewAdminService(adminRepo, rdb)
	if err := adminService.SeedAdmin(context.Background(), cfg.Chat.AdminSeed); err != nil {
		return nil, err
	}

	// 会话存储与变更广播
	chatStore := mongo.NewChatStore(mongoDB)
	realtime := redis.NewRealtime(rdb)
	chatESRepo := es.NewChatRepo(es.Client, es.ChatIndex)

	publishers := []chat.Publisher{realtime}
	if cfg.Kafka.Enable {
		producer, err := kafka.NewChatEventProducer(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, producer)
		app.closers = append(app.closers, func() {
			if err := producer.Close(); err != nil {
				log.Error("close chat event producer failed", "err", err)
			}
		})

		kafkaMgr, err := kafka.NewConsumerManager(cfg, chatESRepo)
		if err != nil {
			return nil, err
		}
		app.KafkaManager = kafkaMgr
	} else {
		publishers = append(publishers, es.NewChatIndexer(chatESRepo))
	}
	if cfg.Chat.WebhookURL != "" {
		webhook := notify.NewSessionWebhook(cfg.Chat.WebhookURL)
		publishers = append(publishers, webhook)
		app.closers = append(app.closers, webhook.Wait)
	}
	store := chat.NewNotifyingStore(chatStore, publishers...)

	locker := redis.NewLocker(rdb, cfg.Chat.LockTTL())
	storageTTL := cfg.Chat.StorageTTL()
	storage := func(contextID string) chat.ClientStorage {
		return redis.NewClientStorage(rdb, contextID, storageTTL)
	}

	// 聊天记录导出
	transcripts := minio.NewTranscriptStore(minio.Client, minio.TranscriptBucket, cfg.MinIO.TranscriptPrefix)
	presign := time.Duration(cfg.MinIO.PresignMinutes) * time.Minute
	transcriptService := service.NewTranscriptService(chatStore, transcripts, presign)
	chatService := service.NewChatService(store, chatESRepo)

	handlers := &api.HandlersGroup{
		AdminHandler:     handler.NewAdminHandler(adminService),
		ChatAdminHandler: handler.NewChatAdminHandler(chatService, transcriptService),
		ChatWSHandler:    handler.NewChatWSHandler(store, realtime, locker, storage, cfg.Server.AllowedOrigins),
	}
	app.Router = api.SetupRouter(handlers, adminService, cfg)

	archiveJob := job.NewTranscriptArchiveJob(chatStore, transcriptService, rdb)
	app.CronMgr = cron.NewCronManager(cfg.Chat.ArchiveCron, archiveJob)

	return app, nil
}
