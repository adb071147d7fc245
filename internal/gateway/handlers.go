package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"candleview/internal/chart"
	"candleview/internal/logger"
	"candleview/internal/model"
	"candleview/internal/overlay"
	"candleview/internal/source"

	"github.com/gorilla/websocket"
)

const maxUploadBytes = 64 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+TOTPHeader)
}

// Deps are the collaborators behind the HTTP routes. Nil optional fields
// disable the routes that need them.
type Deps struct {
	Hub           *Hub
	Session       *chart.Session
	Resolve       func(spec string) (source.Source, error)
	DefaultSource string
	// AllowedSources lists the specs a load request may name besides
	// DefaultSource. Any other spec is refused before it is resolved.
	AllowedSources []string
	Journal       model.JournalReader
	Guard         *Guard
	Stats         *StatsCollector
	Metrics       http.Handler
	Health        http.Handler
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		lastSeq, _ := strconv.ParseInt(r.URL.Query().Get("last_seq"), 10, 64)
		d.Hub.HandleWSRequest(conn, lastSeq)
	})

	mux.HandleFunc("/api/load", rest(http.MethodPost, d.Guard.Wrap(traced(d.handleLoad))))
	mux.HandleFunc("/api/series", rest(http.MethodGet, d.handleSeries))
	mux.HandleFunc("/api/overlay", rest("", d.handleOverlay))
	mux.HandleFunc("/api/overlay/update", rest(http.MethodPost, d.Guard.Wrap(traced(d.handleOverlayUpdate))))
	mux.HandleFunc("/api/resize", rest(http.MethodPost, d.Guard.Wrap(traced(d.handleResize))))
	mux.HandleFunc("/api/loads", rest(http.MethodGet, d.handleLoads))
	mux.HandleFunc("/api/overlay/history", rest(http.MethodGet, d.handleOverlayHistory))
	mux.HandleFunc("/api/stats", rest(http.MethodGet, d.handleStats))

	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics)
	}
	if d.Health != nil {
		mux.Handle("/health", d.Health)
	}
}

// rest applies CORS, answers preflight requests and enforces method when
// it is non-empty.
func rest(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if method != "" && r.Method != method {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		next(w, r)
	}
}

// traced tags a control request with a trace ID, echoed in X-Trace-ID.
func traced(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid := r.Header.Get("X-Trace-ID")
		if tid == "" {
			tid = logger.NewTraceID()
		}
		ctx := logger.WithTraceID(r.Context(), tid)
		w.Header().Set("X-Trace-ID", tid)
		slog.InfoContext(ctx, "control request",
			append([]any{"method", r.Method, "path", r.URL.Path}, logger.LogWithTrace(ctx)...)...)
		next(w, r.WithContext(ctx))
	}
}

func (d Deps) handleLoad(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var src source.Source
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/") {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		src = source.Text{Label: "upload", Body: string(body)}
	} else {
		var req LoadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		spec := strings.TrimSpace(req.Source)
		if spec == "" {
			spec = d.DefaultSource
		}
		if spec == "" || d.Resolve == nil {
			writeError(w, http.StatusBadRequest, "no source given and no default configured")
			return
		}
		if !d.sourceAllowed(spec) {
			slog.WarnContext(ctx, "load refused", append([]any{"source", spec}, logger.LogWithTrace(ctx)...)...)
			writeError(w, http.StatusForbidden, "source not allowed: "+spec)
			return
		}
		var err error
		if src, err = d.Resolve(spec); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	stats, err := d.Session.Load(ctx, src)
	if err != nil {
		slog.WarnContext(ctx, "load failed", append([]any{"source", src.Name(), "error", err}, logger.LogWithTrace(ctx)...)...)
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LoadResponse{Source: src.Name(), Stats: stats, Seq: d.Hub.Seq()})
}

// sourceAllowed reports whether a load request may name spec.
func (d Deps) sourceAllowed(spec string) bool {
	if spec == d.DefaultSource {
		return true
	}
	for _, allowed := range d.AllowedSources {
		if spec == allowed {
			return true
		}
	}
	return false
}

func (d Deps) handleSeries(w http.ResponseWriter, r *http.Request) {
	if !d.Session.Initialized() {
		writeErr(w, fmt.Errorf("series: %w", model.ErrUninitialized))
		return
	}
	writeJSON(w, http.StatusOK, d.Session.Series())
}

func (d Deps) handleOverlay(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, overlayResponse(d.Session.OverlayState(), d.Session.OverlayHandle()))
	case http.MethodPost:
		d.Guard.Wrap(traced(func(w http.ResponseWriter, r *http.Request) {
			d.applyOverlay(w, r, d.Session.DrawOverlay)
		}))(w, r)
	case http.MethodDelete:
		d.Guard.Wrap(traced(d.handleOverlayDelete))(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (d Deps) handleOverlayUpdate(w http.ResponseWriter, r *http.Request) {
	d.applyOverlay(w, r, d.Session.UpdateOverlay)
}

// applyOverlay decodes the request over the current settings, so a body
// with only {"color":"#00FF00"} keeps length and width.
func (d Deps) applyOverlay(w http.ResponseWriter, r *http.Request, op func(model.IndicatorConfig) error) {
	settings := d.Hub.ConfigStore.Get()
	cfg := settings.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := op(cfg); err != nil {
		writeErr(w, err)
		return
	}
	d.Hub.ConfigStore.Set(OverlaySettings{Active: true, Config: cfg})
	writeJSON(w, http.StatusOK, overlayResponse(d.Session.OverlayState(), d.Session.OverlayHandle()))
}

func (d Deps) handleOverlayDelete(w http.ResponseWriter, r *http.Request) {
	if err := d.Session.RemoveOverlay(); err != nil {
		writeErr(w, err)
		return
	}
	settings := d.Hub.ConfigStore.Get()
	if settings.Active {
		d.Hub.ConfigStore.Set(OverlaySettings{Active: false, Config: settings.Config})
	}
	writeJSON(w, http.StatusOK, overlayResponse(overlay.Absent, nil))
}

func (d Deps) handleResize(w http.ResponseWriter, r *http.Request) {
	var req ResizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Width < 0 || req.Height < 0 {
		writeErr(w, fmt.Errorf("resize %dx%d: %w", req.Width, req.Height, model.ErrInvalidParameter))
		return
	}
	if !d.Session.Initialized() {
		writeErr(w, fmt.Errorf("resize: %w", model.ErrUninitialized))
		return
	}
	if !d.Hub.Resize(req.Width, req.Height) {
		if err := d.Session.Resize(req.Width, req.Height); err != nil {
			writeErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, req)
}

func (d Deps) handleLoads(w http.ResponseWriter, r *http.Request) {
	if d.Journal == nil {
		writeJSON(w, http.StatusOK, []model.LoadRecord{})
		return
	}
	recs, err := d.Journal.RecentLoads(r.Context(), limitParam(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (d Deps) handleOverlayHistory(w http.ResponseWriter, r *http.Request) {
	if d.Journal == nil {
		writeJSON(w, http.StatusOK, []model.OverlayRecord{})
		return
	}
	recs, err := d.Journal.RecentOverlays(r.Context(), limitParam(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (d Deps) handleStats(w http.ResponseWriter, r *http.Request) {
	if d.Stats == nil {
		writeError(w, http.StatusNotFound, "stats disabled")
		return
	}
	writeJSON(w, http.StatusOK, d.Hub.Stats(d.Stats, SessionStats(d.Session)))
}

// SessionStats reports series size and overlay state for stats frames.
func SessionStats(s *chart.Session) SessionInfo {
	return func() (int, string) {
		return len(s.Series()), s.OverlayState().String()
	}
}

func limitParam(r *http.Request, def int) int {
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 1000 {
		return l
	}
	return def
}
