package query

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
	"github.com/sosodev/duration"

	"github.com/healnexus/internal/ingestion"
	"github.com/healnexus/internal/models"
	"github.com/healnexus/internal/rtdb"
	"github.com/healnexus/internal/storage"
)

// PollerStats exposes ingestion counters on the health-check endpoint.
type PollerStats interface {
	Stats() ingestion.Stats
}

// LiveFeed is the websocket side of the service.
type LiveFeed interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	GetClientCount() int
}

// ParamError reports a query parameter the handler could not use.
type ParamError struct {
	Param string
	Value string
	Err   error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Param, e.Value, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

type Service struct {
	engine *Engine
	poller PollerStats
	live   LiveFeed
	now    func() time.Time
	log    *slog.Logger
}

// NewService wires the HTTP handlers. poller and live may be nil.
func NewService(engine *Engine, poller PollerStats, live LiveFeed, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine: engine,
		poller: poller,
		live:   live,
		now:    engine.now,
		log:    logger.With("component", "http"),
	}
}

func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health-check", s.handleHealthCheck)
	mux.HandleFunc("/api/health/current", s.handleCurrent)
	mux.HandleFunc("/api/health/history", s.handleHistory)
	mux.HandleFunc("/api/health/export", s.handleExport)
	mux.HandleFunc("/ws/stats", s.handleWebSocketStats)
	if s.live != nil {
		mux.HandleFunc("/ws", s.live.ServeWS)
	}
	return cors(mux)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	out := map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
	}
	if s.poller != nil {
		out["poller"] = s.poller.Stats()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	snap, err := s.engine.Current(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to fetch health data", err)
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:   "No health data available",
			Message: "The realtime database holds no current snapshot",
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	rng, err := s.parseRange(r, true)
	if err != nil {
		s.fail(w, r, "Failed to fetch historical data", err)
		return
	}
	readings, err := s.engine.History(r.Context(), rng)
	if err != nil {
		s.fail(w, r, "Failed to fetch historical data", err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" && format != "archive" {
		s.fail(w, r, "Failed to fetch export data", &ParamError{
			Param: "format", Value: format, Err: errors.New("expected json, csv or archive"),
		})
		return
	}

	rng, err := s.parseRange(r, false)
	if err != nil {
		s.fail(w, r, "Failed to fetch export data", err)
		return
	}
	readings, err := s.engine.Export(r.Context(), rng)
	if err != nil {
		s.fail(w, r, "Failed to fetch export data", err)
		return
	}

	name := "health-export-" + s.now().UTC().Format("20060102-150405")
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
		if err := writeCSV(w, readings); err != nil {
			s.log.Error("failed to write csv export", "error", err)
		}
	case "archive":
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".hnx"))
		if err := storage.WriteArchive(w, readings); err != nil {
			s.log.Error("failed to write archive export", "error", err)
		}
	default:
		writeJSON(w, http.StatusOK, readings)
	}
}

func (s *Service) handleWebSocketStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	out := map[string]any{
		"connected_clients": 0,
		"timestamp":         s.now().Unix(),
		"status":            "unavailable",
	}
	if s.live != nil {
		out["connected_clients"] = s.live.GetClientCount()
		out["status"] = "active"
	}
	writeJSON(w, http.StatusOK, out)
}

// parseRange reads startDate and endDate, and window when allowed. Dates are
// ISO-8601 or epoch milliseconds.
func (s *Service) parseRange(r *http.Request, allowWindow bool) (models.TimeRange, error) {
	q := r.URL.Query()
	var rng models.TimeRange

	for _, p := range []struct {
		name string
		dst  **int64
	}{{"startDate", &rng.Start}, {"endDate", &rng.End}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		ms, err := parseDate(v)
		if err != nil {
			return rng, &ParamError{Param: p.name, Value: v, Err: err}
		}
		*p.dst = &ms
	}

	if w := q.Get("window"); w != "" && allowWindow {
		d, err := duration.Parse(w)
		if err != nil {
			return rng, &ParamError{Param: "window", Value: w, Err: err}
		}
		span := d.ToTimeDuration()
		if span <= 0 {
			return rng, &ParamError{Param: "window", Value: w, Err: errors.New("must be positive")}
		}
		if rng.Start == nil {
			end := s.now()
			if rng.End != nil {
				end = time.UnixMilli(*rng.End)
			}
			start := end.Add(-span).UnixMilli()
			rng.Start = &start
		}
	}

	if err := rng.Validate(); err != nil {
		return rng, &ParamError{Param: "range", Value: q.Get("startDate") + ".." + q.Get("endDate"), Err: err}
	}
	return rng, nil
}

// parseDate accepts epoch milliseconds or ISO-8601. A bare number of up to
// four digits is an ISO-8601 year, anything longer is epoch milliseconds.
func parseDate(v string) (int64, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		if len(v) <= 4 && ms >= 0 {
			return time.Date(int(ms), time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), nil
		}
		return ms, nil
	}
	t, err := iso8601.ParseString(v)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func writeCSV(w http.ResponseWriter, readings []models.Reading) error {
	cw := csv.NewWriter(w)
	header := append([]string{"timestamp", "time"}, models.ChannelNames...)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, r := range readings {
		row[0] = strconv.FormatInt(r.Timestamp, 10)
		row[1] = r.Time().UTC().Format(time.RFC3339Nano)
		for i, v := range r.Values() {
			row[i+2] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Service) fail(w http.ResponseWriter, r *http.Request, summary string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(summary, "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.log.Warn(summary, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: summary, Message: err.Error()})
}

// statusFor maps store and parameter failures onto HTTP statuses.
func statusFor(err error) int {
	var perr *ParamError
	var terr *rtdb.TransportError
	switch {
	case errors.As(err, &perr):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.As(err, &terr):
		if terr.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
