package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
)

// HttpHandler exposes registered flows over HTTP. Every request runs on
// its own Engine with a recording notifier, and the collected effects are
// returned to the caller.
type HttpHandler struct {
	l         *slog.Logger
	cfg       Config
	store     RecordStore
	projectID string
	cache     *AliasCache
	flows     map[string]*Flow
}

// runRequest is the body of a run or trigger request.
type runRequest struct {
	Event       string         `json:"event"`
	ComponentID string         `json:"componentId"`
	Input       map[string]any `json:"input"`
	Page        map[string]any `json:"page"`
	Params      map[string]any `json:"params"`
	User        string         `json:"user"`
}

type runResponse struct {
	Result  *RunResult     `json:"result,omitempty"`
	Effects []Effect       `json:"effects"`
	Error   map[string]any `json:"error,omitempty"`
}

// NewHttpHandler validates flows up front so that a broken definition
// fails at startup rather than on the first request.
func NewHttpHandler(l *slog.Logger, cfg Config, store RecordStore, projectID string, flows []*Flow) (*HttpHandler, error) {
	h := &HttpHandler{
		l:         l,
		cfg:       cfg,
		store:     store,
		projectID: projectID,
		cache:     NewAliasCache(cfg.AliasCacheTTL),
		flows:     make(map[string]*Flow, len(flows)),
	}
	for _, f := range flows {
		if err := Validate(f, cfg); err != nil {
			return nil, fmt.Errorf("error registering flow %s: %w", f.ID, err)
		}
		h.flows[f.ID] = f
	}
	return h, nil
}

// Routes builds the gin router.
func (h *HttpHandler) Routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(_ *gin.Context, _ *slog.Logger) *slog.Logger {
			return h.l
		}),
	))

	router.GET("/health", h.handleHealth)
	router.GET("/flows", h.listFlows)
	router.POST("/flows/:flowID/run", h.runFlow)
	router.POST("/trigger", h.trigger)
	return router
}

func (h *HttpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "flows": len(h.flows)})
}

func (h *HttpHandler) listFlows(c *gin.Context) {
	out := make([]gin.H, 0, len(h.flows))
	for _, f := range h.sortedFlows() {
		item := gin.H{"id": f.ID, "name": f.DisplayName(), "nodes": len(f.Nodes)}
		if f.Trigger != nil {
			item["trigger"] = f.Trigger
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, out)
}

func (h *HttpHandler) runFlow(c *gin.Context) {
	flowID := c.Param("flowID")
	flow, ok := h.flows[flowID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": fmt.Sprintf("flow %s not found", flowID)})
		return
	}

	var req runRequest
	if !h.bind(c, &req) {
		return
	}

	notifier := NewRecordingNotifier()
	engine, err := h.engine(c, notifier)
	if err != nil {
		h.respond(c, notifier, nil, err)
		return
	}
	defer engine.Destroy()

	result, err := engine.ExecuteFlow(c.Request.Context(), flow, req.trigger(flowID))
	h.respond(c, notifier, result, err)
}

// trigger selects the flow by event and component, as the UI does, and
// reports failures through the notifier.
func (h *HttpHandler) trigger(c *gin.Context) {
	var req runRequest
	if !h.bind(c, &req) {
		return
	}

	notifier := NewRecordingNotifier()
	engine, err := h.engine(c, notifier)
	if err != nil {
		h.respond(c, notifier, nil, err)
		return
	}
	defer engine.Destroy()

	for _, f := range h.sortedFlows() {
		if err := engine.RegisterFlow(f); err != nil {
			h.respond(c, notifier, nil, err)
			return
		}
	}

	result, err := engine.Trigger(c.Request.Context(), req.trigger(""))
	h.respond(c, notifier, result, err)
}

func (h *HttpHandler) bind(c *gin.Context, req *runRequest) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format"})
		return false
	}
	return true
}

func (h *HttpHandler) engine(c *gin.Context, notifier Notifier) (*Engine, error) {
	engine := New(h.store, notifier,
		WithLogger(h.l),
		WithConfig(h.cfg),
		WithAliasCache(h.cache),
	)
	if err := engine.Init(c.Request.Context(), h.projectID); err != nil {
		return nil, err
	}
	return engine, nil
}

func (h *HttpHandler) respond(c *gin.Context, notifier *RecordingNotifier, result *RunResult, err error) {
	res := runResponse{Result: result, Effects: notifier.Effects()}
	if err == nil {
		c.JSON(http.StatusOK, res)
		return
	}

	var fe *FlowError
	if errors.As(err, &fe) {
		res.Error = fe.ToMap()
	} else {
		res.Error = map[string]any{"message": err.Error()}
	}
	h.l.ErrorContext(c.Request.Context(), "Flow execution failed",
		"path", c.Request.URL.Path,
		"error", err.Error())
	c.JSON(errorStatus(err), res)
}

// errorStatus maps run failures to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrFlowNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotInitialized), errors.Is(err, ErrDestroyed):
		return http.StatusServiceUnavailable
	case IsStructural(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *HttpHandler) sortedFlows() []*Flow {
	out := make([]*Flow, 0, len(h.flows))
	for _, f := range h.flows {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r runRequest) trigger(flowID string) TriggerContext {
	return TriggerContext{
		FlowID:      flowID,
		Event:       r.Event,
		ComponentID: r.ComponentID,
		Input:       r.Input,
		Page:        r.Page,
		Params:      r.Params,
		User:        r.User,
	}
}
