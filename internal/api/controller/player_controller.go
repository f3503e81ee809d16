package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/colosseumrl/colosseumrl/internal/api/models"
	"github.com/colosseumrl/colosseumrl/internal/api/response"
	"github.com/colosseumrl/colosseumrl/internal/ranking"
)

// PlayerController serves public ranking records.
type PlayerController struct {
	store *ranking.Store
}

// NewPlayerController creates a new PlayerController.
func NewPlayerController(store *ranking.Store) *PlayerController {
	return &PlayerController{store: store}
}

// Get returns one player's rating by username.
func (pc *PlayerController) Get(c *gin.Context) {
	username := c.Param("username")
	rec, err := pc.store.Get(c.Request.Context(), username)
	if err != nil {
		response.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		response.ErrorResponse(c, http.StatusNotFound, "unknown player")
		return
	}

	response.SuccessResponse(c, models.PlayerReply{
		Username: rec.Username,
		Mu:       rec.Mu,
		Sigma:    rec.Sigma,
		LoggedIn: pc.store.LoggedIn(rec.Username),
	})
}
