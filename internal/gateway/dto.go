package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"candleview/internal/model"
	"candleview/internal/overlay"
)

// LoadRequest is the JSON body of POST /api/load. An empty source means the
// configured default.
type LoadRequest struct {
	Source string `json:"source"`
}

// LoadResponse reports a completed load.
type LoadResponse struct {
	Source string          `json:"source"`
	Stats  model.LoadStats `json:"stats"`
	Seq    int64           `json:"seq"`
}

// OverlayResponse describes the overlay after a request.
type OverlayResponse struct {
	State    string                 `json:"state"`
	Config   *model.IndicatorConfig `json:"config,omitempty"`
	Name     string                 `json:"name,omitempty"`
	Points   int                    `json:"points"`
	SeriesID string                 `json:"series_id,omitempty"`
	DrawnAt  string                 `json:"drawn_at,omitempty"`
}

func overlayResponse(state overlay.State, h *overlay.Handle) OverlayResponse {
	resp := OverlayResponse{State: state.String()}
	if h == nil {
		return resp
	}
	cfg := h.Config
	resp.Config = &cfg
	resp.Name = cfg.Name()
	resp.Points = h.Points
	resp.SeriesID = h.Series.ID()
	resp.DrawnAt = h.DrawnAt.UTC().Format(time.RFC3339Nano)
	return resp
}

// ResizeRequest is the body of POST /api/resize.
type ResizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps session errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrEmptySeries),
		errors.Is(err, model.ErrAlreadyInitialized),
		errors.Is(err, model.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, model.ErrFetchFailure):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrUninitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
