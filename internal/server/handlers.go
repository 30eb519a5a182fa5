package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vyrodovalexey/qkrun/internal/middleware"
	"github.com/vyrodovalexey/qkrun/internal/observability"
	"github.com/vyrodovalexey/qkrun/internal/rules"
	"github.com/vyrodovalexey/qkrun/web"
)

// Query parameter names.
const (
	queryParam  = "q"
	formatParam = "format"
	formatJSON  = "json"
)

const assetCacheControl = "public, max-age=86400"

// saveRequest is the body of POST /save.
type saveRequest struct {
	Value *string `json:"value"`
}

// saveResponse is the body of POST /save?format=json.
type saveResponse struct {
	ID string `json:"id"`
}

func (s *Server) renderEditor(c *gin.Context, id, text string) {
	c.HTML(http.StatusOK, web.EditorTemplate, web.EditorPage{
		Title:  s.cfg.Editor.Title,
		URL:    s.publicURL,
		ID:     id,
		Config: text,
	})
}

func (s *Server) handleIndex(c *gin.Context) {
	s.renderEditor(c, "", s.starter.Text())
}

func (s *Server) handleEdit(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := s.storeContext(c.Request.Context())
	defer cancel()

	text, err := s.store.Get(ctx, id)
	if err != nil {
		s.abortWithError(c, err, "Configuration not found")
		return
	}

	s.renderEditor(c, id, text)
}

func (s *Server) handleRedirect(c *gin.Context) {
	id := c.Param("id")

	query, ok := c.GetQuery(queryParam)
	if !ok {
		abortWithStatus(c, http.StatusBadRequest, "Missing query parameter q")
		return
	}

	ctx, cancel := s.storeContext(c.Request.Context())
	defer cancel()

	text, err := s.store.Get(ctx, id)
	if err != nil {
		s.abortWithError(c, err, "Configuration not found")
		return
	}

	// Parsed per request; rule sets are never shared between requests.
	rs, err := rules.Parse(text)
	if err != nil {
		// Stored configurations were validated on save, so this is corruption
		// or an incompatible parser change.
		s.logger.WithContext(c.Request.Context()).Error("stored configuration does not parse",
			observability.String("config_id", id),
			observability.Error(err),
		)
		_ = c.Error(err)
		abortWithStatus(c, http.StatusInternalServerError, "Stored configuration is invalid")
		return
	}

	res := rules.Resolve(rs, query, id)

	if s.metrics != nil {
		s.metrics.RecordResolution(res.Outcome())
	}
	middleware.AddSpanAttributes(c,
		attribute.String("qkrun.config_id", id),
		attribute.String("qkrun.keyword", res.Word),
		attribute.Bool("qkrun.matched", res.Matched),
	)
	s.logger.WithContext(c.Request.Context()).Debug("query resolved",
		observability.String("config_id", id),
		observability.String("word", res.Word),
		observability.Bool("matched", res.Matched),
	)

	c.Redirect(http.StatusSeeOther, res.URL)
}

func (s *Server) handleSave(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if middleware.IsBodyTooLarge(err) {
			middleware.AbortBodyTooLarge(c, s.cfg.Server.MaxBodyBytes)
			return
		}
		abortWithStatus(c, http.StatusBadRequest, "Request body must be JSON like {\"value\": \"...\"}")
		return
	}
	if req.Value == nil {
		abortWithStatus(c, http.StatusBadRequest, "Missing field value")
		return
	}

	if _, err := rules.Parse(*req.Value); err != nil {
		s.abortConfigError(c, err)
		return
	}

	ctx, cancel := s.storeContext(c.Request.Context())
	defer cancel()

	id, err := s.store.Put(ctx, *req.Value)
	if err != nil {
		s.abortWithError(c, err, "Could not save configuration")
		return
	}

	s.logger.WithContext(c.Request.Context()).Info("configuration saved",
		observability.String("config_id", id),
		observability.Int("size", len(*req.Value)),
	)

	if c.Query(formatParam) == formatJSON {
		c.JSON(http.StatusOK, saveResponse{ID: id})
		return
	}
	c.String(http.StatusOK, id)
}

func (s *Server) handleFavicon(c *gin.Context) {
	c.Header("Cache-Control", assetCacheControl)
	c.Data(http.StatusOK, "image/x-icon", s.favicon)
}

// abortConfigError answers 400 naming the offending key when there is one.
func (s *Server) abortConfigError(c *gin.Context, err error) {
	body := gin.H{
		"error":   http.StatusText(http.StatusBadRequest),
		"message": err.Error(),
	}

	var cfgErr *rules.ConfigError
	if errors.As(err, &cfgErr) {
		body["reason"] = cfgErr.Reason
		if cfgErr.Key != "" {
			body["key"] = cfgErr.Key
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
