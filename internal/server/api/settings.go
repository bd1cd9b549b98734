package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/biotwin/internal/app"
)

// SettingsHandler reads and updates the runtime settings.
type SettingsHandler struct {
	app *app.App
}

// NewSettingsHandler creates a SettingsHandler for a.
func NewSettingsHandler(a *app.App) *SettingsHandler {
	return &SettingsHandler{app: a}
}

// ServeHTTP handles GET and PUT /api/settings.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.app.Settings())
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// update applies a partial settings object such as
// {"mirror": true, "particle_stride": 4}. Values may be JSON strings,
// numbers or booleans.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	values := make(map[string]string, len(raw))
	for key, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			values[key] = s
			continue
		}
		values[key] = string(v)
	}

	if err := h.app.SaveSettings(values); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.app.Settings())
}
