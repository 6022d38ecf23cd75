package handler

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"tradegate/internal/auth"
	"tradegate/internal/service"
)

// SwitchHandler exposes the feature switches to operators. Only the known
// feature.* keys are reachable; other system settings are not.
type SwitchHandler struct {
	Settings *service.SystemSettingsService
	Guard    auth.Guard
}

func (h *SwitchHandler) Register(r gin.IRouter) {
	g := r.Group("/switches", h.Guard.Allow(auth.ServiceAdmin))
	g.GET("", h.list)
	g.GET("/:name", h.get)
	g.PUT("/:name", h.put)
}

type switchView struct {
	Name    string `json:"name"`
	Key     string `json:"key"`
	Enabled bool   `json:"enabled"`
}

// @Summary List feature switches
// @Tags settings
// @Produce json
// @Success 200 {array} map[string]any
// @Security BearerAuth
// @Router /switches [get]
func (h *SwitchHandler) list(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusServiceUnavailable, "settings service unavailable", nil)
		return
	}
	defaults := service.DefaultFeatureSwitches()
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]switchView, 0, len(keys))
	for _, k := range keys {
		out = append(out, switchView{
			Name:    strings.TrimPrefix(k, featurePrefix),
			Key:     k,
			Enabled: h.Settings.IsEnabled(c.Request.Context(), k, defaults[k]),
		})
	}
	Ok(c, out, nil)
}

// @Summary Get a feature switch
// @Tags settings
// @Produce json
// @Param name path string true "switch name, e.g. trading_cycle"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Security BearerAuth
// @Router /switches/{name} [get]
func (h *SwitchHandler) get(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusServiceUnavailable, "settings service unavailable", nil)
		return
	}
	name, key, def, ok := lookupSwitch(c.Param("name"))
	if !ok {
		Error(c, http.StatusNotFound, "unknown switch", nil)
		return
	}
	Ok(c, switchView{Name: name, Key: key, Enabled: h.Settings.IsEnabled(c.Request.Context(), key, def)}, nil)
}

type putSwitchRequest struct {
	Enabled *bool `json:"enabled"`
}

// @Summary Turn a feature switch on or off
// @Tags settings
// @Accept json
// @Produce json
// @Param name path string true "switch name, e.g. trading_cycle"
// @Success 200 {object} map[string]any
// @Security BearerAuth
// @Router /switches/{name} [put]
func (h *SwitchHandler) put(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusServiceUnavailable, "settings service unavailable", nil)
		return
	}
	name, key, _, ok := lookupSwitch(c.Param("name"))
	if !ok {
		Error(c, http.StatusNotFound, "unknown switch", nil)
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		Error(c, http.StatusBadRequest, "enabled is required", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), key, *req.Enabled); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, switchView{Name: name, Key: key, Enabled: *req.Enabled}, nil)
}

const featurePrefix = "feature."

func lookupSwitch(raw string) (name, key string, def, ok bool) {
	name = strings.TrimPrefix(strings.TrimSpace(raw), featurePrefix)
	key = featurePrefix + name
	def, ok = service.DefaultFeatureSwitches()[key]
	return name, key, def, ok
}
