// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"gorm.io/gorm"
)

// SessionRecord 对应于数据库中的 'chat_sessions' 表。
// 它是会话在记录存储中的持久化形态，消息列表整体序列化为 JSON 存储。
// IsEphemeral 是纯客户端概念，表中没有对应列。
type SessionRecord struct {
	// ID 是服务端签发的会话唯一标识，作为主键。
	ID string `gorm:"type:varchar(36);primaryKey" json:"id"`
	// UserID 记录了会话归属的用户。
	UserID uint `gorm:"index;not null" json:"userId"`
	// Title 是会话的显示标题。
	Title string `gorm:"type:varchar(255)" json:"title"`
	// Messages 以 JSON 形式存储会话的完整消息列表。
	Messages string `gorm:"type:longtext" json:"-"`
	// TagIDs 以逗号分隔存储会话关联的饮食标签。
	TagIDs string `gorm:"type:text" json:"-"`
	// CreatedAt 由 GORM 自动管理，记录创建时间。
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	// UpdatedAt 由 GORM 自动管理，记录最后更新时间。
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
	// DeletedAt 实现软删除；非空表示会话已删除，默认查询会自动排除。
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (SessionRecord) TableName() string {
	return "chat_sessions"
}
