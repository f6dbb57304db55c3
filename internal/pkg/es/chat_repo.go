package es

import (
	"context"
	"errors"
	log "log/slog"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/operator"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/sortorder"
	"github.com/goccy/go-json"
)

const maxSearchSize = 100

type ChatRepo interface {
	IndexMessage(ctx context.Context, msg *ChatMessageES) error
	SearchMessages(ctx context.Context, keyword, sessionID string, from, size int) ([]*ChatMessageES, error)
}

type ChatRepoImpl struct {
	client *elasticsearch.TypedClient
	index  string
}

func NewChatRepo(client *elasticsearch.TypedClient, index string) ChatRepo {
	return &ChatRepoImpl{client: client, index: index}
}

// IndexMessage 以消息 ID 作为文档 ID，重复消费只会覆盖
func (s *ChatRepoImpl) IndexMessage(ctx context.Context, msg *ChatMessageES) error {
	_, err := s.client.Index(s.index).
		Id(msg.ID).
		Document(msg).
		Do(ctx)
	if err != nil {
		var e *types.ElasticsearchError
		if errors.As(err, &e) && e.Status == ConflictCode {
			log.WarnContext(ctx, "chat message already indexed", "id", msg.ID)
			return nil
		}
		return err
	}
	return nil
}

// SearchMessages 全文检索消息正文与发送人，sessionID 非空时限定会话
func (s *ChatRepoImpl) SearchMessages(ctx context.Context, keyword, sessionID string, from, size int) ([]*ChatMessageES, error) {
	if size <= 0 || size > maxSearchSize {
		size = 20
	}
	if from < 0 {
		from = 0
	}

	boolQuery := &types.BoolQuery{
		Must: []types.Query{{
			MultiMatch: &types.MultiMatchQuery{
				Query:    keyword,
				Fields:   []string{"message^2", "sender_name"},
				Operator: &operator.And,
			},
		}},
	}
	if sessionID != "" {
		boolQuery.Filter = []types.Query{{
			Term: map[string]types.TermQuery{"session_id": {Value: sessionID}},
		}}
	}

	req := s.client.Search().
		Index(s.index).
		Query(&types.Query{Bool: boolQuery}).
		Sort(types.SortOptions{
			SortOptions: map[string]types.FieldSort{
				"created_at": {Order: &sortorder.Desc},
			},
		}).
		From(from).
		Size(size)

	return s.executeSearch(ctx, req)
}

func (s *ChatRepoImpl) executeSearch(ctx context.Context, req *search.Search) ([]*ChatMessageES, error) {
	res, err := req.Do(ctx)
	if err != nil {
		var e *types.ElasticsearchError
		if errors.As(err, &e) && e.Status == NotFoundCode {
			return []*ChatMessageES{}, nil
		}
		return nil, err
	}

	out := make([]*ChatMessageES, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		var doc ChatMessageES
		if err = json.Unmarshal(hit.Source_, &doc); err != nil {
			log.WarnContext(ctx, "skip undecodable chat hit", "err", err)
			continue
		}
		out = append(out, &doc)
	}
	return out, nil
}
