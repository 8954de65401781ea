// Package repository 包含了所有与数据库交互的逻辑。
package repository

import (
	"dietchat-go/internal/model"

	"gorm.io/gorm"
)

// TagRepository 接口定义了饮食标签及冲突规则的数据操作方法。
type TagRepository interface {
	Create(tag *model.DietTag) error
	FindByID(id string) (*model.DietTag, error)
	FindAll() ([]model.DietTag, error)
	FindBatchByIDs(ids []string) ([]model.DietTag, error)
	Update(tag *model.DietTag) error
	Delete(id string) error

	CreateConflictRule(rule *model.TagConflictRule) error
	DeleteConflictRule(id uint) error
	FindConflictRulesAmong(tagIDs []string) ([]model.TagConflictRule, error)
}

type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository 创建一个新的 TagRepository 实例。
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

// Create 在数据库中插入一个新的饮食标签记录。
func (r *tagRepository) Create(tag *model.DietTag) error {
	return r.db.Create(tag).Error
}

// FindByID 根据给定的 tagID 查找一个饮食标签。
func (r *tagRepository) FindByID(tagID string) (*model.DietTag, error) {
	var tag model.DietTag
	err := r.db.Where("tag_id = ?", tagID).First(&tag).Error
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// FindAll 从数据库中检索所有的饮食标签记录。
func (r *tagRepository) FindAll() ([]model.DietTag, error) {
	var tags []model.DietTag
	err := r.db.Find(&tags).Error
	return tags, err
}

// FindBatchByIDs finds diet tags by a slice of IDs.
func (r *tagRepository) FindBatchByIDs(ids []string) ([]model.DietTag, error) {
	var tags []model.DietTag
	if len(ids) == 0 {
		return tags, nil
	}
	err := r.db.Where("tag_id IN ?", ids).Find(&tags).Error
	return tags, err
}

// Update 更新数据库中一个已存在的饮食标签记录。
func (r *tagRepository) Update(tag *model.DietTag) error {
	return r.db.Save(tag).Error
}

// Delete 根据给定的 tagID 删除一个饮食标签记录。
func (r *tagRepository) Delete(tagID string) error {
	return r.db.Delete(&model.DietTag{}, "tag_id = ?", tagID).Error
}

// CreateConflictRule 插入一条标签冲突规则。
func (r *tagRepository) CreateConflictRule(rule *model.TagConflictRule) error {
	return r.db.Create(rule).Error
}

// DeleteConflictRule 根据主键删除一条标签冲突规则。
func (r *tagRepository) DeleteConflictRule(id uint) error {
	return r.db.Delete(&model.TagConflictRule{}, id).Error
}

// FindConflictRulesAmong 返回两端都落在给定标签集合内的冲突规则。
func (r *tagRepository) FindConflictRulesAmong(tagIDs []string) ([]model.TagConflictRule, error) {
	var rules []model.TagConflictRule
	if len(tagIDs) < 2 {
		return rules, nil
	}
	err := r.db.Where("tag_a IN ? AND tag_b IN ?", tagIDs, tagIDs).Find(&rules).Error
	return rules, err
}
