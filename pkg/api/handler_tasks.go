package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ca-refa/licita-monitor/pkg/taskrunner"
)

func (s *Server) handleSubmitTask(c *gin.Context) {
	name := c.Param("name")

	err := s.dispatcher.DispatchTask(c.Request.Context(), name)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "started", "task": name})
	case errors.Is(err, taskrunner.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"status": "busy"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleTaskStatus(c *gin.Context) {
	name, running := s.dispatcher.CurrentTask()
	c.JSON(http.StatusOK, gin.H{"busy": s.dispatcher.Busy(), "task": name, "running": running})
}
