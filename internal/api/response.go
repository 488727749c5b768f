package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"daily-tracker/internal/engine"
)

// Response is the JSON envelope of every API reply.
type Response struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, &Response{Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, &Response{Message: "Task created", Data: data})
}

func message(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, &Response{Message: msg})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, &Response{Error: msg})
}

// failErr maps engine errors onto HTTP statuses.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation), errors.Is(err, engine.ErrAmbiguousID):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrTaskNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrToggleNotAllowed), errors.Is(err, engine.ErrNoPendingConfirmation):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrSessionClosed):
		fail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, engine.ErrRemote):
		log.Printf("[warn] %s %s: %v", c.Request.Method, c.FullPath(), err)
		fail(c, http.StatusBadGateway, "Could not save changes, please try again")
	default:
		log.Printf("[warn] %s %s: %v", c.Request.Method, c.FullPath(), err)
		fail(c, http.StatusInternalServerError, "Internal server error")
	}
}
