package mongo

import (
	"Horizon/internal/chat"
	"Horizon/internal/model"
	"context"
	log "log/slog"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChatStore 基于 MongoDB 的会话存储
type ChatStore struct {
	sessions *mongo.Collection
	messages *mongo.Collection
	now      func() time.Time
}

var _ chat.SessionStore = (*ChatStore)(nil)

func NewChatStore(db *mongo.Database) *ChatStore {
	return &ChatStore{
		sessions: db.Collection(sessionCollection),
		messages: db.Collection(messageCollection),
		now:      time.Now,
	}
}

// timestamp Mongo 只保存毫秒，写入前先截断，保证实时推送与历史查询一致
func (s *ChatStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// FindActiveSession 多条 active 时取最新创建的一条
func (s *ChatStore) FindActiveSession(ctx context.Context, visitorID string) (*model.ChatSession, error) {
	var doc chatSessionDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	err := s.sessions.FindOne(ctx, bson.M{"visitor_id": visitorID, "status": string(model.SessionActive)}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find active session")
	}
	return doc.toModel()
}

// CreateSession 与部分唯一索引冲突时返回胜出的那条会话
func (s *ChatStore) CreateSession(ctx context.Context, visitorID string, details *model.VisitorDetails) (*model.ChatSession, error) {
	session := model.NewChatSession(visitorID, details, s.timestamp())
	oid := primitive.NewObjectID()
	session.ID = oid.Hex()
	if err := model.Validate(session); err != nil {
		return nil, err
	}

	doc := newSessionDoc(session)
	doc.ID = oid
	_, err := s.sessions.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		log.InfoContext(ctx, "concurrent session create, reusing existing", "visitorID", visitorID)
		existing, findErr := s.FindActiveSession(ctx, visitorID)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "insert session")
	}
	return session, nil
}

func (s *ChatStore) GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	id, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, chat.ErrSessionNotFound
	}
	var doc chatSessionDoc
	err = s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, chat.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get session")
	}
	return doc.toModel()
}

// UpdateSessionDetails 只覆盖非空字段
func (s *ChatStore) UpdateSessionDetails(ctx context.Context, sessionID string, details model.VisitorDetails) (*model.ChatSession, error) {
	id, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, chat.ErrSessionNotFound
	}
	d := details.Normalize()
	if err = model.Validate(d); err != nil {
		return nil, err
	}

	set := bson.M{}
	if d.Name != "" {
		set["visitor_name"] = d.Name
	}
	if d.Email != "" {
		set["visitor_email"] = d.Email
	}
	if d.Phone != "" {
		set["visitor_phone"] = d.Phone
	}
	if len(set) == 0 {
		return s.GetSession(ctx, sessionID)
	}

	var doc chatSessionDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = s.sessions.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, chat.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "update session details")
	}
	return doc.toModel()
}

// CloseSession 关闭已关闭的会话视为成功
func (s *ChatStore) CloseSession(ctx context.Context, sessionID string) error {
	id, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return chat.ErrSessionNotFound
	}
	now := s.timestamp()
	res, err := s.sessions.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": string(model.SessionClosed), "closed_at": now}},
	)
	if err != nil {
		return errors.Wrap(err, "close session")
	}
	if res.MatchedCount == 0 {
		return chat.ErrSessionNotFound
	}
	return nil
}

// ListSessions 按最后活跃时间倒序
func (s *ChatStore) ListSessions(ctx context.Context, status model.SessionStatus) ([]*model.ChatSession, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "last_message_at", Value: -1},
		{Key: "created_at", Value: -1},
	})
	return s.findSessions(ctx, bson.M{"status": string(status)}, opts)
}

func (s *ChatStore) findSessions(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.ChatSession, error) {
	cursor, err := s.sessions.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var docs []*chatSessionDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode sessions")
	}

	sessions := make([]*model.ChatSession, 0, len(docs))
	for _, doc := range docs {
		session, err := doc.toModel()
		if err != nil {
			log.WarnContext(ctx, "skip invalid chat session document", "id", doc.ID.Hex(), "err", err)
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// GetMessages 按发送时间升序
func (s *ChatStore) GetMessages(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	cursor, err := s.messages.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "get messages")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var docs []*chatMessageDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode messages")
	}

	messages := make([]*model.ChatMessage, 0, len(docs))
	for _, doc := range docs {
		m, err := doc.toModel()
		if err != nil {
			log.WarnContext(ctx, "skip invalid chat message document", "id", doc.ID.Hex(), "err", err)
			continue
		}
		messages = append(messages, m)
	}
	model.SortMessages(messages)
	return messages, nil
}

// SendMessage 写入消息并刷新会话的最后活跃时间与摘要
func (s *ChatStore) SendMessage(ctx context.Context, in model.NewMessage) (*model.ChatMessage, error) {
	if err := model.Validate(in); err != nil {
		return nil, err
	}
	session, err := s.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, chat.ErrSessionClosed
	}

	msg := in.Build(s.timestamp())
	res, err := s.messages.InsertOne(ctx, newMessageDoc(msg))
	if err != nil {
		return nil, errors.Wrap(err, "insert message")
	}
	msg.ID = res.InsertedID.(primitive.ObjectID).Hex()

	sid, _ := primitive.ObjectIDFromHex(in.SessionID)
	_, err = s.sessions.UpdateOne(ctx,
		bson.M{"_id": sid},
		bson.M{
			"$max": bson.M{"last_message_at": msg.CreatedAt},
			"$set": bson.M{"last_message_preview": model.Preview(msg.Message)},
		},
	)
	if err != nil {
		// 消息已写入，只影响列表排序
		log.WarnContext(ctx, "bump session activity failed", "sessionID", in.SessionID, "err", err)
	}
	return msg, nil
}

// ListClosedUnarchived 尚未导出记录的已关闭会话
func (s *ChatStore) ListClosedUnarchived(ctx context.Context, limit int64) ([]*model.ChatSession, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "closed_at", Value: 1}}).
		SetLimit(limit)
	filter := bson.M{
		"status":         string(model.SessionClosed),
		"transcript_key": bson.M{"$exists": false},
	}
	return s.findSessions(ctx, filter, opts)
}

// MarkArchived 记录会话的归档对象
func (s *ChatStore) MarkArchived(ctx context.Context, sessionID, objectKey string) error {
	id, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return chat.ErrSessionNotFound
	}
	_, err = s.sessions.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"transcript_key": objectKey}})
	return errors.Wrap(err, "mark session archived")
}
