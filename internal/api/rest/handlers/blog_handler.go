package handlers

import (
	"net/http"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/middleware"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/Dhoini/ekaty/pkg/res"
	"github.com/gin-gonic/gin"
)

// BlogHandler публичный блог и редактор статей
type BlogHandler struct {
	svc service.BlogService
	log *logger.Logger
}

// NewBlogHandler создает обработчик блога
func NewBlogHandler(svc service.BlogService, log *logger.Logger) *BlogHandler {
	return &BlogHandler{svc: svc, log: log}
}

// ListPublished GET /api/blog?tag=
func (h *BlogHandler) ListPublished(c *gin.Context) {
	limit, offset := paging(c)
	items, total, err := h.svc.ListPublished(c.Request.Context(), c.Query("tag"), limit, offset)
	if err != nil {
		respondError(c, h.log, err, "list articles")
		return
	}
	c.JSON(http.StatusOK, res.NewListResponse(items, total, limit, offset))
}

// GetPublished GET /api/blog/:slug
func (h *BlogHandler) GetPublished(c *gin.Context) {
	article, err := h.svc.GetPublished(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, h.log, err, "get article")
		return
	}
	c.JSON(http.StatusOK, article)
}

// List GET /api/admin/blog?status=&tag=
func (h *BlogHandler) List(c *gin.Context) {
	status := domain.ArticleStatus(c.Query("status"))
	switch status {
	case "", domain.ArticleStatusDraft, domain.ArticleStatusPublished:
	default:
		badRequest(c, "unknown status")
		return
	}
	limit, offset := paging(c)
	items, total, err := h.svc.List(c.Request.Context(), domain.BlogFilter{
		Status: status,
		Tag:    c.Query("tag"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, h.log, err, "list articles")
		return
	}
	c.JSON(http.StatusOK, res.NewListResponse(items, total, limit, offset))
}

// Get GET /api/admin/blog/:id
func (h *BlogHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	article, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "get article")
		return
	}
	c.JSON(http.StatusOK, article)
}

// Generate POST /api/admin/blog/generate
func (h *BlogHandler) Generate(c *gin.Context) {
	var in domain.BlogGenerateRequest
	if !bindJSON(c, h.log, &in) {
		return
	}
	authorID, _ := middleware.UserID(c)
	article, err := h.svc.Generate(c.Request.Context(), authorID, in)
	if err != nil {
		respondError(c, h.log, err, "generate article")
		return
	}
	c.JSON(http.StatusCreated, article)
}

// Create POST /api/admin/blog
func (h *BlogHandler) Create(c *gin.Context) {
	var in domain.BlogArticleInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	authorID, _ := middleware.UserID(c)
	article, err := h.svc.Create(c.Request.Context(), authorID, in)
	if err != nil {
		respondError(c, h.log, err, "create article")
		return
	}
	c.JSON(http.StatusCreated, article)
}

// Update PATCH /api/admin/blog/:id
func (h *BlogHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var in domain.BlogArticleInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	article, err := h.svc.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, h.log, err, "update article")
		return
	}
	c.JSON(http.StatusOK, article)
}

// Publish POST /api/admin/blog/:id/publish
func (h *BlogHandler) Publish(c *gin.Context) {
	h.setPublished(c, true)
}

// Unpublish POST /api/admin/blog/:id/unpublish
func (h *BlogHandler) Unpublish(c *gin.Context) {
	h.setPublished(c, false)
}

func (h *BlogHandler) setPublished(c *gin.Context, published bool) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	article, err := h.svc.SetPublished(c.Request.Context(), id, published)
	if err != nil {
		respondError(c, h.log, err, "publish article")
		return
	}
	c.JSON(http.StatusOK, article)
}

// Delete DELETE /api/admin/blog/:id
func (h *BlogHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err, "delete article")
		return
	}
	c.Status(http.StatusNoContent)
}
