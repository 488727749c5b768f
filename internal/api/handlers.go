package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"daily-tracker/internal/engine"
	"daily-tracker/internal/model"
	"daily-tracker/internal/resetclock"
	"daily-tracker/internal/transfer"
)

func (s *Server) listTasks(c *gin.Context) {
	var filter engine.Filter
	if raw := c.Query("category"); raw != "" {
		category, ok := model.ParseCategory(raw)
		if !ok {
			fail(c, http.StatusBadRequest, fmt.Sprintf("unknown category %q", raw))
			return
		}
		filter.Category = category
	}
	sortOpt, ok := engine.ParseSortOption(c.Query("sort"))
	if !ok {
		fail(c, http.StatusBadRequest, fmt.Sprintf("unknown sort %q", c.Query("sort")))
		return
	}
	filter.Sort = sortOpt
	filter.Query = c.Query("q")

	success(c, sessionFrom(c).List(filter))
}

func (s *Server) createTask(c *gin.Context) {
	var in engine.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	task, err := sessionFrom(c).Add(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}
	created(c, task)
}

func (s *Server) editTask(c *gin.Context) {
	var in engine.EditInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	session := sessionFrom(c)
	target, err := session.Find(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	task, err := session.Edit(c.Request.Context(), target.ID, in)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, task)
}

func (s *Server) toggleTask(c *gin.Context) {
	session := sessionFrom(c)
	target, err := session.Find(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	outcome, err := session.RequestToggle(c.Request.Context(), target.ID)
	if err != nil {
		failErr(c, err)
		return
	}
	if outcome.NeedsConfirmation {
		c.JSON(http.StatusAccepted, &Response{Message: "Confirm to change this daily task", Data: outcome})
		return
	}
	success(c, outcome)
}

func (s *Server) confirmToggle(c *gin.Context) {
	task, err := sessionFrom(c).ConfirmToggle(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, task)
}

func (s *Server) cancelToggle(c *gin.Context) {
	sessionFrom(c).CancelToggle()
	message(c, "Toggle cancelled")
}

func (s *Server) requestDelete(c *gin.Context) {
	session := sessionFrom(c)
	target, err := session.Find(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	task, err := session.RequestDelete(target.ID)
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, &Response{Message: "Confirm to delete this task", Data: task})
}

func (s *Server) confirmDelete(c *gin.Context) {
	task, err := sessionFrom(c).ConfirmDelete(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, &Response{Message: "Task deleted", Data: task})
}

func (s *Server) cancelDelete(c *gin.Context) {
	sessionFrom(c).CancelDelete()
	message(c, "Delete cancelled")
}

type confirmationsView struct {
	Toggle string `json:"toggle,omitempty"`
	Delete string `json:"delete,omitempty"`
}

// pendingConfirmations lets a client restore a confirm dialog after a reload.
func (s *Server) pendingConfirmations(c *gin.Context) {
	session := sessionFrom(c)
	success(c, confirmationsView{Toggle: session.PendingToggle(), Delete: session.PendingDelete()})
}

func (s *Server) stats(c *gin.Context) {
	success(c, sessionFrom(c).Stats())
}

type settingsView struct {
	ResetTime      string `json:"reset_time"`
	LastResetDate  string `json:"last_reset_date,omitempty"`
	SecondsToReset int64  `json:"seconds_to_reset"`
}

func viewSettings(session *engine.Session) settingsView {
	return settingsView{
		ResetTime:      session.ResetTime().String(),
		LastResetDate:  session.Settings().LastResetDate,
		SecondsToReset: int64(session.TimeUntilReset().Seconds()),
	}
}

func (s *Server) settings(c *gin.Context) {
	success(c, viewSettings(sessionFrom(c)))
}

type resetTimeRequest struct {
	ResetTime string `json:"reset_time" binding:"required"`
}

func (s *Server) setResetTime(c *gin.Context) {
	var req resetTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "reset_time is required")
		return
	}
	rt, err := resetclock.ParseResetTime(req.ResetTime)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	session := sessionFrom(c)
	if err := session.SetResetTime(c.Request.Context(), rt); err != nil {
		failErr(c, err)
		return
	}
	success(c, viewSettings(session))
}

func (s *Server) resetNow(c *gin.Context) {
	session := sessionFrom(c)
	if err := session.ResetNow(c.Request.Context()); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, &Response{Message: "Daily tasks reset", Data: session.StatsFor(model.CategoryDaily)})
}

func (s *Server) countdown(c *gin.Context) {
	session := sessionFrom(c)
	remaining := session.TimeUntilReset()
	success(c, gin.H{
		"reset_time": session.ResetTime().String(),
		"seconds":    int64(remaining.Seconds()),
		"formatted":  resetclock.FormatCountdown(remaining),
	})
}

func (s *Server) exportTasks(c *gin.Context) {
	doc := sessionFrom(c).Export()
	filename := fmt.Sprintf("tasks_export_%s.json", strings.SplitN(doc.ExportDate, "T", 2)[0])
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.JSON(http.StatusOK, doc)
}

func (s *Server) importTasks(c *gin.Context) {
	doc, err := transfer.Decode(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	tasks, err := sessionFrom(c).Import(c.Request.Context(), doc)
	if err != nil && tasks == nil {
		failErr(c, err)
		return
	}
	msg := fmt.Sprintf("Imported %d tasks", len(tasks))
	if err != nil {
		msg += ", but the reset time could not be saved"
	}
	c.JSON(http.StatusOK, &Response{Message: msg, Data: tasks})
}

func (s *Server) logout(c *gin.Context) {
	s.manager.Close(c.GetString(userIDKey))
	message(c, "Signed out")
}
