package rest

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/totegamma/restoration-forms/internal/domain"
	"github.com/totegamma/restoration-forms/internal/present/rest/presenter"
	"github.com/totegamma/restoration-forms/internal/service"
	"github.com/totegamma/restoration-forms/internal/usecase"
)

// HealthCheck reports whether one backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	form   *usecase.FormUsecase
	signal *service.SignalService
	health map[string]HealthCheck
}

// NewHandler builds the REST surface. signal may be nil, in which case the realtime stream is unavailable.
func NewHandler(
	form *usecase.FormUsecase,
	signal *service.SignalService,
	health map[string]HealthCheck,
) *Handler {
	return &Handler{
		form:   form,
		signal: signal,
		health: health,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.handleHealth)
	e.GET("/forms/:form/answers", h.handleCollect)
	e.PUT("/forms/:form/answers", h.handleSync)
	e.DELETE("/forms/:form/relations/:question", h.handleClearRelations)
	e.GET("/forms/:form/realtime", h.handleRealtime)
}

// modelRefs reads ?sites=<uuid>&projects=<uuid> style query parameters.
func modelRefs(query url.Values) usecase.ModelRefs {
	refs := make(usecase.ModelRefs, len(query))
	for modelType, values := range query {
		if len(values) > 0 {
			refs[modelType] = values[0]
		}
	}
	return refs
}

func (h *Handler) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()

	status := make(map[string]string, len(h.health))
	healthy := true
	for name, check := range h.health {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	return presenter.OK(c, status)
}

func (h *Handler) handleCollect(c echo.Context) error {
	ctx := c.Request().Context()

	answers, err := h.form.Collect(ctx, c.Param("form"), modelRefs(c.QueryParams()))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"answers": answers})
}

func (h *Handler) handleSync(c echo.Context) error {
	ctx := c.Request().Context()

	var input usecase.SyncInput
	err := c.Bind(&input)
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	if input.Answers == nil {
		return presenter.BadRequestMessage(c, "answers are required")
	}

	result, err := h.form.Sync(ctx, c.Param("form"), input)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, result)
}

func (h *Handler) handleClearRelations(c echo.Context) error {
	ctx := c.Request().Context()

	err := h.form.ClearRelations(ctx, c.Param("form"), c.Param("question"), modelRefs(c.QueryParams()))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.NoContent(c)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Request struct {
	Type  string   `json:"type"`
	Forms []string `json:"forms"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	if h.signal == nil {
		return presenter.ServiceUnavailable(c, "realtime is not configured")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan domain.FormSynced)

	form := c.Param("form")
	go h.signal.Realtime(ctx, []string{form}, input, output)

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}
				return
			}

			switch req.Type {
			case "listen":
				forms := append([]string{form}, req.Forms...)
				select {
				case input <- forms:
				case <-ctx.Done():
					return
				}
				slog.DebugContext(
					ctx, "Socket subscribe",
					slog.Any("forms", forms),
					slog.String("module", "socket"),
				)
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event, ok := <-output:
			if !ok {
				return nil
			}
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
