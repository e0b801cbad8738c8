package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/trackr/internal/importer"
	"github.com/timmy/trackr/internal/logger"
	"github.com/timmy/trackr/internal/service"
)

// maxImportBytes bounds the CSV body of a bulk import.
const maxImportBytes = 8 << 20

// PostHandler handles tracked post endpoints.
type PostHandler struct {
	registry *service.PostRegistry
}

// NewPostHandler creates a new post handler.
func NewPostHandler(registry *service.PostRegistry) *PostHandler {
	return &PostHandler{registry: registry}
}

// AddPlaceholderRequest adds a creator row without a link.
type AddPlaceholderRequest struct {
	CreatorName string `json:"creator_name" binding:"required"`
}

// ListPosts handles GET /api/v1/campaigns/:id/posts.
func (h *PostHandler) ListPosts(c *gin.Context) {
	posts, err := h.registry.ListPosts(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"posts": posts,
		"total": len(posts),
	})
}

// AddPost handles POST /api/v1/campaigns/:id/posts.
// A known link returns 409 with the existing post.
func (h *PostHandler) AddPost(c *gin.Context) {
	var req service.AddPostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	post, err := h.registry.AddPost(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// AddPlaceholder handles POST /api/v1/campaigns/:id/placeholders.
func (h *PostHandler) AddPlaceholder(c *gin.Context) {
	var req AddPlaceholderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	post, err := h.registry.AddPlaceholder(c.Request.Context(), c.Param("id"), req.CreatorName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// ImportPosts handles POST /api/v1/campaigns/:id/posts/import.
// The body is CSV, either raw or as the "file" field of a multipart form.
// Row numbers in the response are file lines, counting the header as 1.
func (h *PostHandler) ImportPosts(c *gin.Context) {
	ctx := c.Request.Context()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)

	body := c.Request.Body
	if c.ContentType() == "multipart/form-data" {
		fh, err := c.FormFile("file")
		if err != nil {
			badRequest(c, "Missing CSV file: "+err.Error())
			return
		}
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "Unreadable CSV file: "+err.Error())
			return
		}
		defer f.Close()
		body = f
	}

	parsed, err := importer.ParseCSV(body)
	if err != nil {
		if errors.Is(err, importer.ErrNoURLColumn) {
			badRequest(c, err.Error())
			return
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abort(c, http.StatusRequestEntityTooLarge, ErrorBody{Code: CodeBadRequest, Message: "CSV body too large"})
			return
		}
		respondError(c, err)
		return
	}

	result, err := h.registry.ImportPosts(ctx, c.Param("id"), parsed.Rows)
	if err != nil {
		respondError(c, err)
		return
	}

	for i := range result.Errors {
		if row := result.Errors[i].Row; row >= 1 && row <= len(parsed.Lines) {
			result.Errors[i].Row = parsed.Lines[row-1]
		}
	}
	for _, skipped := range parsed.Skipped {
		result.Failed++
		result.Errors = append(result.Errors, service.ImportError{Row: skipped.Line, Message: skipped.Message})
	}

	logger.CtxInfo(ctx, "CSV import finished: created=%d, placeholders=%d, duplicates=%d, failed=%d",
		result.Created, result.Placeholders, result.Duplicates, result.Failed)
	c.JSON(http.StatusOK, result)
}

// GetPost handles GET /api/v1/posts/:id.
func (h *PostHandler) GetPost(c *gin.Context) {
	post, err := h.registry.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// UpdatePost handles PATCH /api/v1/posts/:id.
func (h *PostHandler) UpdatePost(c *gin.Context) {
	var req service.PostUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	post, err := h.registry.UpdatePost(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// DeletePost handles DELETE /api/v1/posts/:id.
func (h *PostHandler) DeletePost(c *gin.Context) {
	if err := h.registry.DeletePost(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
