// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"dietchat-go/internal/model"
	"dietchat-go/internal/service"
	"dietchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// TagHandler 负责饮食标签目录与冲突规则的 API。
// 读接口对所有用户开放，写接口仅限管理员。
type TagHandler struct {
	tagService service.TagService
}

// NewTagHandler 创建一个新的 TagHandler 实例。
func NewTagHandler(tagService service.TagService) *TagHandler {
	return &TagHandler{tagService: tagService}
}

// List 返回全部饮食标签。
func (h *TagHandler) List(c *gin.Context) {
	tags, err := h.tagService.ListTags()
	if err != nil {
		log.Errorf("List: failed to list diet tags: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取标签列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": tags})
}

// CheckConflictsRequest 定义了冲突检查 API 的请求体结构。
type CheckConflictsRequest struct {
	TagIDs []string `json:"tagIds" binding:"required"`
}

// CheckConflicts 检查一组标签内部的冲突，按严重程度分组返回。
func (h *TagHandler) CheckConflicts(c *gin.Context) {
	var req CheckConflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：tagIds 不能为空"})
		return
	}

	result, err := h.tagService.CheckConflicts(req.TagIDs)
	if err != nil {
		log.Errorf("CheckConflicts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "冲突检查失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}

// CreateTagRequest 定义了创建饮食标签 API 的请求体结构。
type CreateTagRequest struct {
	TagID       string `json:"tagId" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Create 创建一个饮食标签。仅限管理员。
func (h *TagHandler) Create(c *gin.Context) {
	var req CreateTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：tagId 和 name 不能为空"})
		return
	}

	tag := &model.DietTag{
		TagID:       req.TagID,
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
	}
	if err := h.tagService.CreateTag(tag); err != nil {
		log.Errorf("Create: failed to create diet tag %s: %v", req.TagID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "创建标签失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": tag})
}

// UpdateTagRequest 定义了更新饮食标签 API 的请求体结构。
type UpdateTagRequest struct {
	Name        string `json:"name" binding:"required"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Update 更新一个饮食标签。仅限管理员。
func (h *TagHandler) Update(c *gin.Context) {
	var req UpdateTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：name 不能为空"})
		return
	}

	tag := &model.DietTag{
		TagID:       c.Param("id"),
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
	}
	if err := h.tagService.UpdateTag(tag); err != nil {
		log.Errorf("Update: failed to update diet tag %s: %v", tag.TagID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "更新标签失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": tag})
}

// Delete 删除一个饮食标签。仅限管理员。
func (h *TagHandler) Delete(c *gin.Context) {
	if err := h.tagService.DeleteTag(c.Param("id")); err != nil {
		log.Errorf("Delete: failed to delete diet tag %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除标签失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// CreateRuleRequest 定义了创建冲突规则 API 的请求体结构。
type CreateRuleRequest struct {
	TagA     string `json:"tagA" binding:"required"`
	TagB     string `json:"tagB" binding:"required"`
	Severity string `json:"severity" binding:"required"`
	Note     string `json:"note"`
}

// CreateRule 创建一条标签冲突规则。仅限管理员。
func (h *TagHandler) CreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：tagA、tagB 和 severity 不能为空"})
		return
	}

	switch model.ConflictSeverity(req.Severity) {
	case model.SeverityMutuallyExclusive, model.SeverityWarning, model.SeverityInfo:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的 severity"})
		return
	}

	rule := &model.TagConflictRule{
		TagA:     req.TagA,
		TagB:     req.TagB,
		Severity: model.ConflictSeverity(req.Severity),
		Note:     req.Note,
	}
	if err := h.tagService.CreateConflictRule(rule); err != nil {
		log.Errorf("CreateRule: failed to create conflict rule %s/%s: %v", req.TagA, req.TagB, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "创建冲突规则失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": rule})
}

// DeleteRule 删除一条标签冲突规则。仅限管理员。
func (h *TagHandler) DeleteRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的规则 id"})
		return
	}
	if err := h.tagService.DeleteConflictRule(uint(id)); err != nil {
		log.Errorf("DeleteRule: failed to delete conflict rule %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除冲突规则失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}
