package handler

import (
	"github.com/bitfantasy/nimo-quote/internal/quote/service"
	"github.com/gin-gonic/gin"
)

// DocumentHandler 询价单附件
type DocumentHandler struct {
	svc *service.DocumentService
}

func NewDocumentHandler(svc *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Upload POST /rfqs/:id/documents (multipart, 字段 file)
func (h *DocumentHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "无法解析上传文件: "+err.Error())
		return
	}
	src, err := fh.Open()
	if err != nil {
		BadRequest(c, "无法读取上传文件: "+err.Error())
		return
	}
	defer src.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	doc, err := h.svc.Upload(c.Request.Context(), c.Param("id"), GetUserID(c), src, fh.Filename, fh.Size, contentType)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.svc.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": docs})
}

// Download GET /documents/:id/download
func (h *DocumentHandler) Download(c *gin.Context) {
	doc, body, err := h.svc.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	defer body.Close()

	c.DataFromReader(200, doc.Size, doc.ContentType, body, map[string]string{
		"Content-Disposition": "attachment; filename=\"" + doc.FileName + "\"",
	})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

func (h *DocumentHandler) DeletePermanently(c *gin.Context) {
	if err := h.svc.DeletePermanently(c.Request.Context(), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}
