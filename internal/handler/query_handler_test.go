package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/condoql/internal/ai"
	"github.com/xxxsen/condoql/internal/chunker"
	"github.com/xxxsen/condoql/internal/chunkstore"
	"github.com/xxxsen/condoql/internal/model"
	"github.com/xxxsen/condoql/internal/service"
)

func setupQueryRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider, err := ai.NewEmbedProvider("hash", nil)
	require.NoError(t, err)
	store := chunkstore.NewMemoryStore(ai.NewEmbedder(provider, "test-model"))

	chunks, err := chunker.NewBuilder().Build([]model.FinancialRecord{{
		Amount:      2450.30,
		Date:        "2025-03-10",
		Category:    "utilities",
		Subcategory: "electricity",
		Vendor:      "CEMIG",
		Description: "Electricity bill",
		DocumentID:  "balancete-2025-03",
	}})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), chunks))

	query := service.NewQueryService(store, nil, nil, service.RetrievalConfig{})
	h := NewQueryHandler(query)

	engine := gin.New()
	engine.POST("/api/v1/query", h.Query)
	engine.GET("/api/v1/filters", h.Filters)
	engine.GET("/api/v1/health", h.Health)
	return engine
}

func TestQueryHandler_Query(t *testing.T) {
	engine := setupQueryRouter(t)

	body := bytes.NewBufferString(`{"question":"electricity costs in March 2025"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "R$ 2,450.30")
	require.Contains(t, rec.Body.String(), "conversation_id")
	require.Contains(t, rec.Body.String(), "provenance")
}

func TestQueryHandler_QueryRejectsBadBody(t *testing.T) {
	engine := setupQueryRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString("not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid request")
}

func TestQueryHandler_Filters(t *testing.T) {
	engine := setupQueryRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/filters", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "utilities")
	require.Contains(t, rec.Body.String(), "2025-03")
	require.Contains(t, rec.Body.String(), "CEMIG")
}

func TestQueryHandler_Health(t *testing.T) {
	engine := setupQueryRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}
