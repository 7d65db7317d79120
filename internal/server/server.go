// Package server is the reference backend for live stages: it starts stage
// sessions, scores completed stages and keeps a run's cumulative total.
package server

import (
	"github.com/gin-gonic/gin"
	"github.com/koscakluka/pitchlive/core/scoring"
	"github.com/koscakluka/pitchlive/core/stages"
	"github.com/koscakluka/pitchlive/internal/runledger"
	"github.com/koscakluka/pitchlive/internal/session"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/pitchlive/internal/server"

var logger = otelslog.NewLogger(scopeName)

type Deps struct {
	Catalog  stages.Catalog
	Sessions session.Starter
	Scorer   scoring.Scorer
	Ledger   runledger.Store
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())

	h := &handlers{deps: d}
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	api := r.Group("/api")
	api.GET("/stages", h.listStages)
	api.GET("/schema", h.schema)
	api.POST("/session/start", h.startSession)
	api.POST("/run/stage/complete", h.completeStage)
	return r
}
