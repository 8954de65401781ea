// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"dietchat-go/internal/model"
	"dietchat-go/internal/repository"
	"dietchat-go/internal/service"
	"dietchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SessionHandler 负责已持久化会话的管理 API。
type SessionHandler struct {
	sessionService service.SessionService
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。
func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// currentUser 从 AuthMiddleware 注入的上下文中取出用户对象。
func currentUser(c *gin.Context) (*model.User, bool) {
	userValue, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := userValue.(*model.User)
	return user, ok
}

// List 返回当前用户的会话列表，按最近更新排序。
func (h *SessionHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	records, err := h.sessionService.ListSessions(c.Request.Context(), user.ID)
	if err != nil {
		log.Errorf("List: failed to list sessions for user %d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取会话列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": records})
}

// Get 返回单个会话的完整内容，包括消息列表。
func (h *SessionHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	sess, err := h.sessionService.GetSession(user.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在"})
			return
		}
		log.Errorf("Get: failed to get session %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取会话失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": sess})
}

// RenameRequest 定义了重命名会话 API 的请求体结构。
type RenameRequest struct {
	Title string `json:"title" binding:"required"`
}

// Rename 更新会话标题。
func (h *SessionHandler) Rename(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：title 不能为空"})
		return
	}

	err := h.sessionService.RenameSession(c.Request.Context(), user.ID, c.Param("id"), req.Title)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在"})
			return
		}
		log.Errorf("Rename: failed to rename session %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "重命名会话失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// Delete 软删除一个会话。
func (h *SessionHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	err := h.sessionService.DeleteSession(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在"})
			return
		}
		log.Errorf("Delete: failed to delete session %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除会话失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// AddTagRequest 定义了向会话添加饮食标签 API 的请求体结构。
type AddTagRequest struct {
	TagID string `json:"tagId" binding:"required"`
}

// AddTag 把一个饮食标签加到会话上。
// 互斥级冲突会阻止添加，响应携带分组后的冲突详情。
func (h *SessionHandler) AddTag(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	var req AddTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：tagId 不能为空"})
		return
	}

	result, err := h.sessionService.AddTag(c.Request.Context(), user.ID, c.Param("id"), req.TagID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在"})
			return
		}
		if errors.Is(err, service.ErrTagConflict) {
			c.JSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "message": "标签与已有标签互斥", "data": result})
			return
		}
		log.Errorf("AddTag: failed to add tag %s to session %s: %v", req.TagID, c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "添加标签失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}

// RemoveTag 从会话上移除一个饮食标签。
func (h *SessionHandler) RemoveTag(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	err := h.sessionService.RemoveTag(c.Request.Context(), user.ID, c.Param("id"), c.Param("tagId"))
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在"})
			return
		}
		log.Errorf("RemoveTag: failed to remove tag %s from session %s: %v", c.Param("tagId"), c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "移除标签失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}
