package handler

import (
	"doc-organizer-go/internal/service"
	"doc-organizer-go/pkg/log"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理所有管理员相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// SearchStatus 返回检索依赖的连通性与索引统计。
func (h *AdminHandler) SearchStatus(c *gin.Context) {
	status := h.adminService.SearchStatus(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": status})
}

// Reindex 为所有已处理完成的文档投递重建索引任务。
func (h *AdminHandler) Reindex(c *gin.Context) {
	admin, ok := currentUser(c)
	if !ok {
		return
	}
	result, err := h.adminService.Reindex(c.Request.Context(), admin)
	if err != nil {
		if errors.Is(err, service.ErrIndexNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": err.Error(), "data": nil})
			return
		}
		log.Errorf("[AdminHandler] 重建索引失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "重建索引失败", "data": nil})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "重建索引任务已投递", "data": result})
}

// ListUsers 处理获取用户列表的请求。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	users, err := h.adminService.ListUsers(page, size)
	if err != nil {
		log.Errorf("[AdminHandler] 获取用户列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取用户列表失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": users})
}
