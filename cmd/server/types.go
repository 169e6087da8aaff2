package main

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"codeberg.org/modelrelay/relay/internal/cache"
	"codeberg.org/modelrelay/relay/internal/config"
	"codeberg.org/modelrelay/relay/internal/events"
	"codeberg.org/modelrelay/relay/internal/guard"
	"codeberg.org/modelrelay/relay/internal/orchestrator"
)

// holds all dependencies and state for the API server
type Server struct {
	// db is nil when no DATABASE_URL is configured; the postgres cache
	// tier and semantic index are disabled in that case
	db *pgxpool.Pool

	config   *config.Config
	provider *config.Provider
	cache    *cache.Tiered
	guard    *guard.Guard
	hub      *events.Hub
	orch     *orchestrator.Orchestrator
	router   *gin.Engine
}
