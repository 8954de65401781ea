// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// DietTag 对应于数据库中的 'diet_tags' 表。
// 它描述一个饮食偏好或限制标签，例如"低钠"、"素食"、"高蛋白"。
type DietTag struct {
	// TagID 是饮食标签的唯一标识符，作为主键。
	TagID string `gorm:"type:varchar(255);primaryKey" json:"tagId"`
	// Name 是饮食标签的显示名称。
	Name string `gorm:"type:varchar(100);not null" json:"name"`
	// Category 用于对标签分组，例如 preference / restriction / goal。
	Category string `gorm:"type:varchar(50)" json:"category"`
	// Description 提供了对该标签更详细的描述，会拼入 AI 提示词上下文。
	Description string `gorm:"type:text" json:"description"`
	// CreatedAt 由 GORM 自动管理，记录创建时间。
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	// UpdatedAt 由 GORM 自动管理，记录最后更新时间。
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DietTag) TableName() string {
	return "diet_tags"
}

// ConflictSeverity 表示一对标签冲突的严重程度。
type ConflictSeverity string

const (
	// SeverityMutuallyExclusive 表示两个标签互斥，禁止同时出现在一个会话上。
	SeverityMutuallyExclusive ConflictSeverity = "mutually_exclusive"
	// SeverityWarning 表示组合可行但需要提醒用户。
	SeverityWarning ConflictSeverity = "warning"
	// SeverityInfo 表示仅作提示的组合说明。
	SeverityInfo ConflictSeverity = "info"
)

// TagConflictRule 对应于数据库中的 'tag_conflict_rules' 表。
// 每条记录描述一对标签之间的冲突关系，TagA/TagB 无方向之分。
type TagConflictRule struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	TagA      string           `gorm:"type:varchar(255);index;not null" json:"tagA"`
	TagB      string           `gorm:"type:varchar(255);index;not null" json:"tagB"`
	Severity  ConflictSeverity `gorm:"type:varchar(32);not null" json:"severity"`
	Note      string           `gorm:"type:text" json:"note"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (TagConflictRule) TableName() string {
	return "tag_conflict_rules"
}

// TagConflictResult 是冲突检查的结果，按严重程度分组。
type TagConflictResult struct {
	MutuallyExclusive []TagConflictRule `json:"mutuallyExclusive"`
	Warning           []TagConflictRule `json:"warning"`
	Info              []TagConflictRule `json:"info"`
}

// HasBlocking 报告结果中是否存在互斥级别的冲突。
func (r *TagConflictResult) HasBlocking() bool {
	return len(r.MutuallyExclusive) > 0
}
