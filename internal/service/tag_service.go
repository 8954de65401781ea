// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"fmt"
	"strings"

	"dietchat-go/internal/model"
	"dietchat-go/internal/repository"
	"dietchat-go/pkg/log"
)

// ErrTagConflict 表示待添加的标签与已有标签互斥。
var ErrTagConflict = errors.New("service: tag conflicts with existing tags")

// TagService 定义了饮食标签目录与冲突检查的业务接口。
type TagService interface {
	ListTags() ([]model.DietTag, error)
	CreateTag(tag *model.DietTag) error
	UpdateTag(tag *model.DietTag) error
	DeleteTag(tagID string) error
	CreateConflictRule(rule *model.TagConflictRule) error
	DeleteConflictRule(id uint) error

	// CheckConflicts 返回给定标签集合内部的冲突，按严重程度分组。
	CheckConflicts(tagIDs []string) (*model.TagConflictResult, error)
	// ValidateAddition 检查把 newTagID 加入集合后与之相关的冲突。
	// 存在互斥级冲突时返回 ErrTagConflict，结果仍然携带分组详情。
	ValidateAddition(tagIDs []string, newTagID string) (*model.TagConflictResult, error)
	// PromptContext 生成一段描述用户饮食标签的提示词上下文。
	// 任何查询失败只记录日志并返回空串，提示词装配不阻断聊天。
	PromptContext(tagIDs []string) string
}

type tagService struct {
	tagRepo repository.TagRepository
}

// NewTagService 创建一个新的 TagService 实例。
func NewTagService(tagRepo repository.TagRepository) TagService {
	return &tagService{tagRepo: tagRepo}
}

func (s *tagService) ListTags() ([]model.DietTag, error) {
	return s.tagRepo.FindAll()
}

func (s *tagService) CreateTag(tag *model.DietTag) error {
	return s.tagRepo.Create(tag)
}

func (s *tagService) UpdateTag(tag *model.DietTag) error {
	return s.tagRepo.Update(tag)
}

func (s *tagService) DeleteTag(tagID string) error {
	return s.tagRepo.Delete(tagID)
}

func (s *tagService) CreateConflictRule(rule *model.TagConflictRule) error {
	return s.tagRepo.CreateConflictRule(rule)
}

func (s *tagService) DeleteConflictRule(id uint) error {
	return s.tagRepo.DeleteConflictRule(id)
}

// CheckConflicts 查询给定标签集合内部的全部冲突规则并按严重程度分组。
func (s *tagService) CheckConflicts(tagIDs []string) (*model.TagConflictResult, error) {
	rules, err := s.tagRepo.FindConflictRulesAmong(tagIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflict rules: %w", err)
	}
	return groupBySeverity(rules), nil
}

func (s *tagService) ValidateAddition(tagIDs []string, newTagID string) (*model.TagConflictResult, error) {
	combined := append(append([]string(nil), tagIDs...), newTagID)
	rules, err := s.tagRepo.FindConflictRulesAmong(combined)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflict rules: %w", err)
	}

	// 只关心涉及新标签的那部分规则
	related := rules[:0]
	for _, r := range rules {
		if r.TagA == newTagID || r.TagB == newTagID {
			related = append(related, r)
		}
	}

	result := groupBySeverity(related)
	if result.HasBlocking() {
		return result, ErrTagConflict
	}
	return result, nil
}

// PromptContext 把标签名称、说明与警告级组合提示拼成一段系统提示词上下文。
func (s *tagService) PromptContext(tagIDs []string) string {
	if len(tagIDs) == 0 {
		return ""
	}

	tags, err := s.tagRepo.FindBatchByIDs(tagIDs)
	if err != nil {
		log.Warnf("查询饮食标签失败，本轮提示词不携带标签上下文: %v", err)
		return ""
	}
	if len(tags) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("用户设置了以下饮食标签，回答时必须同时满足：")
	for i, t := range tags {
		if i > 0 {
			sb.WriteString("、")
		}
		sb.WriteString(t.Name)
		if t.Description != "" {
			sb.WriteString("（")
			sb.WriteString(t.Description)
			sb.WriteString("）")
		}
	}
	sb.WriteString("。")

	if result, err := s.CheckConflicts(tagIDs); err == nil {
		for _, r := range result.Warning {
			if r.Note != "" {
				sb.WriteString("注意：")
				sb.WriteString(r.Note)
				sb.WriteString("。")
			}
		}
	}
	return sb.String()
}

func groupBySeverity(rules []model.TagConflictRule) *model.TagConflictResult {
	result := &model.TagConflictResult{}
	for _, r := range rules {
		switch r.Severity {
		case model.SeverityMutuallyExclusive:
			result.MutuallyExclusive = append(result.MutuallyExclusive, r)
		case model.SeverityWarning:
			result.Warning = append(result.Warning, r)
		default:
			result.Info = append(result.Info, r)
		}
	}
	return result
}
