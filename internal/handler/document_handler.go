package handler

import (
	"doc-organizer-go/internal/service"
	"doc-organizer-go/pkg/log"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

func documentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的文档 ID", "data": nil})
		return 0, false
	}
	return uint(id), true
}

func writeDocumentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": err.Error(), "data": nil})
	case errors.Is(err, service.ErrUnsupportedFileType), errors.Is(err, service.ErrEmptyFile),
		errors.Is(err, service.ErrInvalidSearchRequest):
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
	case errors.Is(err, service.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"code": http.StatusRequestEntityTooLarge, "message": err.Error(), "data": nil})
	default:
		log.Errorf("[DocumentHandler] 请求失败, path: %s, error: %v", c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务器内部错误", "data": nil})
	}
}

// Upload 处理 multipart 文件上传，字段 file 为文件，category 可选。
func (h *DocumentHandler) Upload(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少上传文件", "data": nil})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		log.Errorf("[DocumentHandler] 打开上传文件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "读取上传文件失败", "data": nil})
		return
	}
	defer file.Close()

	doc, err := h.docService.Upload(c.Request.Context(), user, service.UploadRequest{
		Filename:    fileHeader.Filename,
		Size:        fileHeader.Size,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Category:    c.PostForm("category"),
		Body:        file,
	})
	if err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": http.StatusCreated, "message": "文件上传成功，正在后台处理", "data": doc})
}

// List 分页列出当前用户的文档。
func (h *DocumentHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}
	page, err := h.docService.List(c.Request.Context(), user.ID, c.Query("category"), limit, offset)
	if err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": page})
}

// Get 返回单个文档的元数据。
func (h *DocumentHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}
	doc, err := h.docService.Get(c.Request.Context(), user.ID, id)
	if err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": doc})
}

// Preview 返回文档提取出的文本。
func (h *DocumentHandler) Preview(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}
	previewInfo, err := h.docService.Preview(c.Request.Context(), user.ID, id)
	if err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "文件预览内容获取成功", "data": previewInfo})
}

// Download 生成临时下载链接。
func (h *DocumentHandler) Download(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}
	info, err := h.docService.GenerateDownloadURL(c.Request.Context(), user.ID, id)
	if err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "文件下载链接生成成功", "data": info})
}

// Delete 删除文档。
func (h *DocumentHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}
	if err := h.docService.Delete(c.Request.Context(), user.ID, id); err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "文档删除成功", "data": nil})
}

// Categories 返回全部分类及当前用户在各分类下的文档数。
func (h *DocumentHandler) Categories(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	cats, err := h.docService.Categories(c.Request.Context(), user.ID)
	if err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"categories": cats}})
}
