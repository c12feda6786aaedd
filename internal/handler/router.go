package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/condoql/internal/middleware"
)

type RouterDeps struct {
	Query       *QueryHandler
	Ingest      *IngestHandler
	Statements  *StatementHandler
	AuthEnabled bool
	JWTSecret   []byte
	QueryWindow time.Duration
}

// RegisterRoutes wires the API. Query endpoints stay public behind a rate
// limit; mutating endpoints require a token when auth is enabled.
func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", deps.Query.Health)
	api.GET("/filters", deps.Query.Filters)

	queryGroup := api.Group("")
	if deps.QueryWindow > 0 {
		queryGroup.Use(middleware.RateLimit(deps.QueryWindow))
	}
	queryGroup.POST("/query", deps.Query.Query)

	adminGroup := api.Group("")
	if deps.AuthEnabled {
		adminGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	}
	adminGroup.POST("/ingest", deps.Ingest.Ingest)
	adminGroup.POST("/reset", deps.Ingest.Reset)
	adminGroup.GET("/statements", deps.Statements.List)
	adminGroup.GET("/statements/:id", deps.Statements.Get)
	adminGroup.GET("/statements/:id/download", deps.Statements.Download)
}
