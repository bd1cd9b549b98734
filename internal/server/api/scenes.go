package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/biotwin/internal/store"
)

// ScenesHandler serves saved segmentation scenes.
type ScenesHandler struct {
	store *store.Store
}

// NewScenesHandler creates a new ScenesHandler with the given store.
func NewScenesHandler(s *store.Store) *ScenesHandler {
	return &ScenesHandler{store: s}
}

// ServeHTTP routes /api/scenes and /api/scenes/{id}.
func (h *ScenesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/scenes")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, path)
	case http.MethodDelete:
		h.delete(w, r, path)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type listScenesResponse struct {
	Scenes []*store.Scene `json:"scenes"`
}

// list handles GET /api/scenes?limit=n, newest first.
func (h *ScenesHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	scenes, err := h.store.Scenes().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list scenes")
		return
	}
	if scenes == nil {
		scenes = []*store.Scene{}
	}

	writeJSON(w, http.StatusOK, listScenesResponse{Scenes: scenes})
}

func (h *ScenesHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	scene, err := h.store.Scenes().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Scene not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get scene")
		return
	}

	writeJSON(w, http.StatusOK, scene)
}

func (h *ScenesHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Scenes().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Scene not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete scene")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
