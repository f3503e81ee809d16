package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colosseumrl/colosseumrl/internal/api/models"
	"github.com/colosseumrl/colosseumrl/internal/api/response"
	"github.com/colosseumrl/colosseumrl/internal/ranking"
	"github.com/colosseumrl/colosseumrl/internal/scheduler"
)

// MatchController handles matchmaking HTTP requests.
type MatchController struct {
	scheduler   *scheduler.Scheduler
	environment string
}

// NewMatchController creates a new MatchController.
func NewMatchController(s *scheduler.Scheduler, environment string) *MatchController {
	return &MatchController{scheduler: s, environment: environment}
}

// RequestMatch queues the caller for a match and blocks until one forms or
// the client goes away. Closing the request is how a client leaves the queue.
func (mc *MatchController) RequestMatch(c *gin.Context) {
	var req models.MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	assignment, err := mc.scheduler.RequestMatch(c.Request.Context(), req.Username, req.CredentialHash)
	if err != nil {
		switch {
		case errors.Is(err, ranking.ErrWrongCredential), errors.Is(err, ranking.ErrUnknownUser):
			response.ErrorResponse(c, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, ranking.ErrAlreadyLoggedIn):
			response.ErrorResponse(c, http.StatusConflict, "user already queued or in a match")
		case c.Request.Context().Err() != nil:
			// Client gave up; nothing left to answer.
		default:
			response.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	response.SuccessResponse(c, models.MatchReply{
		Username: assignment.Username,
		Host:     assignment.Host,
		Port:     assignment.Port,
		AuthKey:  assignment.AuthKey,
		Rating:   assignment.Rating,
	})
}

// Status reports current scheduler occupancy.
func (mc *MatchController) Status(c *gin.Context) {
	stats := mc.scheduler.Stats()
	response.SuccessResponse(c, models.StatusReply{
		Environment:    mc.environment,
		PlayersPerGame: mc.scheduler.PlayersPerGame(),
		QueueDepth:     stats.QueueDepth,
		ActiveMatches:  stats.ActiveMatches,
		FreePorts:      stats.FreePorts,
		MatchesTotal:   stats.MatchesTotal,
	})
}
