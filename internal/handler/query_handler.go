package handler

import (
	"bytes"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"

	"github.com/xxxsen/condoql/internal/pkg/errcode"
	"github.com/xxxsen/condoql/internal/pkg/response"
	"github.com/xxxsen/condoql/internal/service"
)

type QueryHandler struct {
	query    *service.QueryService
	markdown goldmark.Markdown
}

func NewQueryHandler(query *service.QueryService) *QueryHandler {
	return &QueryHandler{
		query:    query,
		markdown: goldmark.New(),
	}
}

type queryRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id"`
	Render         string `json:"render"`
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	answer, err := h.query.AnswerQuestion(c.Request.Context(), req.Question, req.ConversationID)
	if err != nil {
		handleError(c, err)
		return
	}
	resp := gin.H{
		"answer":          answer.Answer,
		"conversation_id": answer.ConversationID,
		"degraded":        answer.Degraded,
		"filter":          answer.UsedFilter,
		"supporting":      answer.Supporting,
		"provenance":      answer.Provenance,
	}
	if req.Render == "html" {
		var buf bytes.Buffer
		if err := h.markdown.Convert([]byte(answer.Answer), &buf); err == nil {
			resp["answer_html"] = buf.String()
		}
	}
	response.Success(c, resp)
}

func (h *QueryHandler) Filters(c *gin.Context) {
	values, err := h.query.FilterValues(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"categories": values.Categories,
		"periods":    values.Periods,
		"vendors":    values.Vendors,
	})
}

func (h *QueryHandler) Health(c *gin.Context) {
	count, err := h.query.Count(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"status":               "ok",
		"chunks":               count,
		"generator_configured": h.query.GeneratorConfigured(),
	})
}
