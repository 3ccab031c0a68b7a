package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/victornm/crosstate/internal/domain"
)

type setPixelRequest struct {
	Color domain.Color `json:"color"`
}

func (a *API) SetPixel(c *gin.Context) {
	x, y, ok := position(c)
	if !ok {
		return
	}

	var req setPixelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	a.route(c, &domain.SetPixel{X: x, Y: y, Color: req.Color})
}

func (a *API) ClearPixel(c *gin.Context) {
	x, y, ok := position(c)
	if !ok {
		return
	}

	a.route(c, &domain.ClearPixel{X: x, Y: y})
}

type setPixelsRequest struct {
	Pixels []domain.PixelUpdate `json:"pixels" binding:"required"`
}

func (a *API) SetPixels(c *gin.Context) {
	var req setPixelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	a.route(c, &domain.SetPixels{Pixels: req.Pixels})
}

func (a *API) ClaimPixel(c *gin.Context) {
	x, y, ok := position(c)
	if !ok {
		return
	}

	if err := a.cs.Claim(c.Request.Context(), x, y); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (a *API) GetPixel(c *gin.Context) {
	x, y, ok := position(c)
	if !ok {
		return
	}

	p, err := a.ps.GetPixel(c.Request.Context(), x, y)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (a *API) CanvasStats(c *gin.Context) {
	st, err := a.cs.Stats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func (a *API) PixelHistory(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	if err != nil || limit <= 0 {
		abortBadRequest(c, err)
		return
	}

	updates, err := a.ps.PixelHistory(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, updates)
}

func (a *API) Notifications(c *gin.Context) {
	var (
		notes []domain.NotificationRecord
		err   error
	)

	if c.Query("unprocessed") == "true" {
		notes, err = a.cs.Unprocessed(c.Request.Context())
	} else {
		notes, err = a.cs.Notifications(c.Request.Context())
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, notes)
}

func (a *API) MarkNotificationProcessed(c *gin.Context) {
	index, err := strconv.ParseInt(c.Param("index"), 10, 64)
	if err != nil {
		abortBadRequest(c, err)
		return
	}

	if err := a.cs.MarkProcessed(c.Request.Context(), index); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) MarkAllNotificationsProcessed(c *gin.Context) {
	if err := a.cs.MarkAllProcessed(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) CleanupNotifications(c *gin.Context) {
	if err := a.cs.CleanupNotifications(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func position(c *gin.Context) (x, y int, ok bool) {
	x, errX := strconv.Atoi(c.Param("x"))
	y, errY := strconv.Atoi(c.Param("y"))
	if errX != nil || errY != nil {
		abortBadRequest(c, errX)
		return 0, 0, false
	}

	return x, y, true
}
