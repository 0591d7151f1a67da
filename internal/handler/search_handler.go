package handler

import (
	"doc-organizer-go/internal/model"
	"doc-organizer-go/internal/service"
	"doc-organizer-go/pkg/log"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// SearchRequest 定义了搜索 API 的请求体结构。
type SearchRequest struct {
	Query    string `json:"query"`
	Category string `json:"category"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
}

// Search 处理搜索请求：托管检索优先，失败时回退到本地检索。
func (h *SearchHandler) Search(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}

	env, err := h.searchService.Search(c.Request.Context(), model.SearchQuery{
		UserID:   user.ID,
		Text:     req.Query,
		Category: req.Category,
		Limit:    req.Limit,
		Offset:   req.Offset,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidSearchRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
			return
		}
		log.Errorf("[SearchHandler] 搜索失败, user: %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "搜索失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": env})
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的参数: " + key, "data": nil})
		return 0, false
	}
	return n, true
}

// History 返回当前用户最近的搜索记录。
func (h *SearchHandler) History(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	items, err := h.searchService.History(c.Request.Context(), user.ID, limit)
	if err != nil {
		writeSearchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"history": items, "total": len(items)}})
}

// ClearHistory 清空当前用户的搜索记录。
func (h *SearchHandler) ClearHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	n, err := h.searchService.ClearHistory(c.Request.Context(), user.ID)
	if err != nil {
		writeSearchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "搜索历史已清空", "data": gin.H{"deleted_count": n}})
}

// Popular 返回全站热门搜索。
func (h *SearchHandler) Popular(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	popular, err := h.searchService.Popular(c.Request.Context(), limit)
	if err != nil {
		writeSearchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"popular_searches": popular}})
}

// Suggestions 返回搜索补全建议。
func (h *SearchHandler) Suggestions(c *gin.Context) {
	q := c.Query("q")
	suggestions, err := h.searchService.Suggestions(q)
	if err != nil {
		writeSearchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"query": q, "suggestions": suggestions}})
}

func writeSearchError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidSearchRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
		return
	}
	log.Errorf("[SearchHandler] 请求失败, path: %s, error: %v", c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务器内部错误", "data": nil})
}
