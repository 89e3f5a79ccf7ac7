package routes

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"ogameapi/core"
)

type BlackboxRequest struct {
	Blackbox string `json:"blackbox"`
	Timezone string `json:"timezone"`
	Language string `json:"language"`
}

// EncodeBlackboxRoute returns a fresh token and what it carries.
func (h *Handlers) EncodeBlackboxRoute(c echo.Context) error {
	var req BlackboxRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request"})
	}

	timezone, language := req.Timezone, req.Language
	if timezone == "" {
		timezone = h.Env.Config.Fingerprint.Timezone
	}
	if language == "" {
		language = h.Env.Config.Fingerprint.Language
	}

	token, err := core.NewBlackboxGenerator(core.DefaultDescriptor(timezone, language)).Blackbox()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"success": false, "error": "failed to generate blackbox"})
	}
	values, err := core.DecodeBlackbox(token)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"success": false, "error": "failed to decode blackbox"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"blackbox": "tra:" + token,
		"values":   values,
	})
}

func (h *Handlers) DecodeBlackboxRoute(c echo.Context) error {
	var req BlackboxRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Blackbox) == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request"})
	}

	values, err := core.DecodeBlackbox(strings.TrimSpace(req.Blackbox))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "values": values})
}

// Register mounts every route on e.
func (h *Handlers) Register(e *echo.Echo, limiter *IPLimiter) {
	create := h.CreateTaskRoute
	if limiter != nil {
		create = limiter.Middleware(create)
	}

	e.POST("/createTask", create)
	e.POST("/getTask", h.GetTaskRoute)
	e.GET("/getPresets", h.GetPresetsRoute)
	e.GET("/getStats", h.GetStatsRoute)

	e.POST("/encodeBlackbox", h.EncodeBlackboxRoute)
	e.POST("/decodeBlackbox", h.DecodeBlackboxRoute)
}
