package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ayusman/biotwin/internal/app"
	"github.com/ayusman/biotwin/internal/inference"
	"github.com/ayusman/biotwin/internal/segment"
)

const (
	maxImageBytes  = 32 << 20
	segmentTimeout = 30 * time.Second
)

// ImagesHandler accepts an encoded image and starts encoding it.
type ImagesHandler struct {
	app *app.App
}

// NewImagesHandler creates an ImagesHandler for a.
func NewImagesHandler(a *app.App) *ImagesHandler {
	return &ImagesHandler{app: a}
}

type imageResponse struct {
	Name    string `json:"name"`
	Version uint64 `json:"version"`
}

// ServeHTTP handles POST /api/images?name=cell.png with the raw image as
// the body. The encode finishes asynchronously; the response carries the
// version decodes will target.
func (h *ImagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxImageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "Image body is required")
		return
	}
	if len(data) > maxImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "Image too large")
		return
	}

	name := r.URL.Query().Get("name")
	version, err := h.app.LoadImage(r.Context(), name, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, imageResponse{Name: name, Version: version})
}

// SegmentHandler decodes a mask at a point and returns its geometry.
type SegmentHandler struct {
	app     *app.App
	timeout time.Duration
}

// NewSegmentHandler creates a SegmentHandler for a.
func NewSegmentHandler(a *app.App) *SegmentHandler {
	return &SegmentHandler{app: a, timeout: segmentTimeout}
}

type segmentRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// ServeHTTP handles POST /api/segment with {"x":..,"y":..} in normalized
// image coordinates.
func (h *SegmentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req segmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.X == nil || req.Y == nil {
		writeError(w, http.StatusBadRequest, "x and y are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.app.Segment(ctx, *req.X, *req.Y)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "Segmentation timed out")
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, statusFor(res.Err), res)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, inference.ErrNoEmbedding), errors.Is(err, inference.ErrStale), errors.Is(err, segment.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, inference.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
