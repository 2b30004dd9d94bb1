// Package api provides the local HTTP surface an operator UI drives the
// Task Runner and Rules CRUD through.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ca-refa/licita-monitor/pkg/database"
	"github.com/ca-refa/licita-monitor/pkg/repository"
	"github.com/ca-refa/licita-monitor/pkg/rulescache"
)

// Dispatcher runs the named ETL task through the Task Runner, reporting
// busy if one is already in flight.
type Dispatcher interface {
	DispatchTask(ctx context.Context, name string) error
	Busy() bool
	CurrentTask() (string, bool)
}

// Server wraps a gin router exposing health, task control, and rules CRUD.
type Server struct {
	router     *gin.Engine
	dbClient   *database.Client
	dispatcher Dispatcher
	repo       *repository.Repository
	rules      *rulescache.Cache
}

// NewServer builds the router and registers every route.
func NewServer(dbClient *database.Client, dispatcher Dispatcher, repo *repository.Repository, rules *rulescache.Cache) *Server {
	router := gin.Default()
	s := &Server{router: router, dbClient: dbClient, dispatcher: dispatcher, repo: repo, rules: rules}
	s.setupRoutes()
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	tasks := s.router.Group("/tasks")
	tasks.POST("/:name", s.handleSubmitTask)
	tasks.GET("/status", s.handleTaskStatus)

	rules := s.router.Group("/rules")
	rules.GET("/keywords", s.handleListKeywordRules)
	rules.POST("/keywords", s.handleAddKeywordRule)
	rules.DELETE("/keywords/:id", s.handleDeleteKeywordRule)
	rules.GET("/organisms", s.handleListOrganismRules)
	rules.PUT("/organisms/:id", s.handleSetOrganismRule)
	rules.DELETE("/organisms/:id", s.handleDeleteOrganismRule)
}

func (s *Server) handleHealth(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health, err := database.Health(reqCtx, s.dbClient.Pool)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": health,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": health,
		"busy":     s.dispatcher.Busy(),
	})
}
