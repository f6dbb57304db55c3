package mongo

import (
	"Horizon/internal/api/config"
	"Horizon/internal/pkg/logger"
	"context"
	log "log/slog"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	sessionCollection = "chat_sessions"
	messageCollection = "chat_messages"
)

// InitMongo 建立连接并返回 Database 引用，同时初始化索引
func InitMongo(cfg config.MongoConfig) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URL).
		SetMonitor(logger.NewMongoMonitor()),
	)
	if err != nil {
		return nil, err
	}

	if err = client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(cfg.Database)
	if err = EnsureChatIndexes(ctx, db); err != nil {
		return nil, err
	}

	log.Info("MongoDB initialized successfully", "db", cfg.Database)
	return db, nil
}

// EnsureChatIndexes 部分唯一索引保证同一访客最多一个 active 会话
func EnsureChatIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(sessionCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "visitor_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_active_visitor").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "active"}),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "last_message_at", Value: -1}},
			Options: options.Index().SetName("status_last_message_at"),
		},
	})
	if err != nil {
		return errors.Wrap(err, "create chat_sessions indexes")
	}

	_, err = db.Collection(messageCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("session_created_at"),
	})
	return errors.Wrap(err, "create chat_messages indexes")
}
