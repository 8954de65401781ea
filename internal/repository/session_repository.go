// Package repository 提供了数据访问层的实现。
package repository

import (
	"errors"

	"dietchat-go/internal/model"

	"gorm.io/gorm"
)

// ErrRecordNotFound 表示目标记录不存在或已被软删除。
var ErrRecordNotFound = errors.New("repository: record not found")

// SessionRepository 定义了会话记录存储的操作接口。
// 所有读取都会自动排除软删除的记录。
type SessionRepository interface {
	Create(record *model.SessionRecord) error
	FindByID(id string) (*model.SessionRecord, error)
	FindByUserID(userID uint) ([]model.SessionRecord, error)
	Update(record *model.SessionRecord) error
	SoftDelete(id string, userID uint) (bool, error)
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建一个新的 SessionRepository 实例。
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// Create 在数据库中插入一条新的会话记录。
func (r *sessionRepository) Create(record *model.SessionRecord) error {
	return r.db.Create(record).Error
}

// FindByID 根据会话 ID 查找一条会话记录。
func (r *sessionRepository) FindByID(id string) (*model.SessionRecord, error) {
	var record model.SessionRecord
	err := r.db.Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByUserID 返回用户的全部会话记录，按最近更新排序。
func (r *sessionRepository) FindByUserID(userID uint) ([]model.SessionRecord, error) {
	var records []model.SessionRecord
	err := r.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&records).Error
	return records, err
}

// Update 更新一条已存在的会话记录。
func (r *sessionRepository) Update(record *model.SessionRecord) error {
	res := r.db.Model(&model.SessionRecord{}).Where("id = ?", record.ID).Updates(map[string]interface{}{
		"title":    record.Title,
		"messages": record.Messages,
		"tag_ids":  record.TagIDs,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SoftDelete 对一条会话记录做软删除，返回是否确有记录被删除。
func (r *sessionRepository) SoftDelete(id string, userID uint) (bool, error) {
	res := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&model.SessionRecord{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
