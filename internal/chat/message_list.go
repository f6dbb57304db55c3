package chat

import "Horizon/internal/model"

// MessageList 去重且按发送时间排序的消息列表。
// 历史拉取与实时推送可能重复投递同一条消息，所有合并都经过这里。
type MessageList struct {
	byID  map[string]struct{}
	items []*model.ChatMessage
}

func NewMessageList() *MessageList {
	return &MessageList{byID: make(map[string]struct{})}
}

// Merge 合并消息，返回是否有新增
func (l *MessageList) Merge(msgs ...*model.ChatMessage) bool {
	added := false
	for _, m := range msgs {
		if m == nil || m.ID == "" {
			continue
		}
		if _, ok := l.byID[m.ID]; ok {
			continue
		}
		l.byID[m.ID] = struct{}{}
		l.items = append(l.items, m)
		added = true
	}
	if added {
		model.SortMessages(l.items)
	}
	return added
}

func (l *MessageList) Reset() {
	l.byID = make(map[string]struct{})
	l.items = nil
}

func (l *MessageList) Len() int {
	return len(l.items)
}

func (l *MessageList) Last() *model.ChatMessage {
	if len(l.items) == 0 {
		return nil
	}
	return l.items[len(l.items)-1]
}

// Items 返回副本
func (l *MessageList) Items() []*model.ChatMessage {
	out := make([]*model.ChatMessage, len(l.items))
	copy(out, l.items)
	return out
}
