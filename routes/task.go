package routes

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"ogameapi/captcha"
	"ogameapi/core"
	utils "ogameapi/utils"
)

type Request struct {
	TaskID string `json:"task_id"`
	core.TaskRequest
}

// CaptchaStats is implemented by *captcha.Solver.
type CaptchaStats interface {
	Stats() captcha.Stats
}

type Handlers struct {
	Env     *core.Environment
	Captcha CaptchaStats
	Timeout time.Duration
	Log     zerolog.Logger

	pool sync.Map
	wg   sync.WaitGroup
}

func NewHandlers(env *core.Environment, stats CaptchaStats, timeout time.Duration) *Handlers {
	return &Handlers{
		Env:     env,
		Captcha: stats,
		Timeout: timeout,
		Log:     env.Log.With().Str("component", "routes").Logger(),
	}
}

// Wait blocks until every started task finished.
func (h *Handlers) Wait() {
	h.wg.Wait()
}

func (h *Handlers) CreateTaskRoute(c echo.Context) error {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(contentType, echo.MIMEApplicationJSON) {
		return c.JSON(http.StatusUnsupportedMediaType, map[string]interface{}{
			"success": false,
			"error":   "Unsupported Content-Type",
			"details": fmt.Sprintf("Expected 'Content-Type: application/json' but got '%s'", contentType),
		})
	}

	var req Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request"})
	}

	if req.Proxy != "" && !validProxy(req.Proxy) {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid proxy"})
	}

	task, err := core.NewLoginTask(h.Env, req.TaskRequest)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": err.Error()})
	}
	h.pool.Store(task.ID, task)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), h.Timeout)
		defer cancel()

		// the outcome is recorded on the task and logged by it
		_ = task.Run(ctx)
	}()

	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "task_id": task.ID})
}

func (h *Handlers) GetTaskRoute(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request"})
	}

	val, exists := h.pool.Load(req.TaskID)
	if !exists {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid task_id"})
	}
	view := val.(*core.LoginTask).View()

	switch view.Status {
	case core.StatusCompleted:
		h.pool.Delete(req.TaskID)
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": true,
			"status":  view.Status,
			"session": map[string]interface{}{
				"token":         view.Session.BearerToken,
				"server_number": view.Session.ServerNumber,
				"language":      view.Session.Language,
				"server_id":     view.Session.ServerID,
				"player_id":     view.Session.PlayerID,
				"player_name":   view.Session.PlayerName,
			},
			"rounds":         view.Rounds,
			"low_confidence": view.LowConfidence,
			"time":           math.Round(view.ProcessTime*100) / 100,
		})

	case core.StatusError:
		h.pool.Delete(req.TaskID)
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": false,
			"status":  view.Status,
			"error":   view.ErrorReason,
		})

	case core.StatusProcessing:
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": false,
			"status":  view.Status,
		})

	default:
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "unknown task status",
		})
	}
}

func (h *Handlers) GetPresetsRoute(c echo.Context) error {
	presets := make(map[string]string, len(utils.Presets))
	for _, preset := range utils.Presets {
		presets[preset.Name] = preset.LobbyURL
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"presets": presets,
	})
}

func (h *Handlers) GetStatsRoute(c echo.Context) error {
	stats := map[string]interface{}{
		"success": true,
		"tasks":   h.Env.Stats(),
	}
	if h.Captcha != nil {
		stats["captcha"] = h.Captcha.Stats()
	}
	return c.JSON(http.StatusOK, stats)
}

func validProxy(proxy string) bool {
	if !strings.HasPrefix(proxy, "http://") && !strings.HasPrefix(proxy, "https://") && !strings.HasPrefix(proxy, "socks5://") {
		return false
	}
	for _, local := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		if strings.Contains(proxy, local) {
			return false
		}
	}
	return strings.Contains(proxy, ":")
}
