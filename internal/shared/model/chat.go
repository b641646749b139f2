// Package model 定义核心数据模型
//
// chat.go 包含对话历史相关的数据模型定义：
//   - ChatRecord：一条对话历史记录（用户输入 + AI 回复）
//   - ChatType：对话类型枚举
//
// 对话类型：
//   - review：代码审查
//   - enhance：代码优化
//   - translate：代码翻译
//   - snapshot：代码快照分析
package model

import (
	"time"
)

// ============================================================================
// ChatType - 对话类型枚举
// ============================================================================

// ChatType 对话类型
type ChatType string

const (
	// ChatTypeReview 代码审查
	ChatTypeReview ChatType = "review"

	// ChatTypeEnhance 代码优化
	ChatTypeEnhance ChatType = "enhance"

	// ChatTypeTranslate 代码翻译
	ChatTypeTranslate ChatType = "translate"

	// ChatTypeSnapshot 代码快照分析
	ChatTypeSnapshot ChatType = "snapshot"
)

// Valid 校验对话类型是否合法
func (t ChatType) Valid() bool {
	switch t {
	case ChatTypeReview, ChatTypeEnhance, ChatTypeTranslate, ChatTypeSnapshot:
		return true
	}
	return false
}

// ============================================================================
// ChatRecord - 对话历史记录
// ============================================================================

// ChatRecord 一条对话历史记录
//
// 每条记录归属于唯一的用户。用户的任何写入（新增/删除）都会使
// 该用户的全部查询缓存失效，保证写后读不会拿到旧数据。
type ChatRecord struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Type      ChatType  `json:"type" bson:"type"`
	Content   string    `json:"content" bson:"content"`
	Response  string    `json:"response" bson:"response"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}
