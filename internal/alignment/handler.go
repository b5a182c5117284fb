package alignment

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"camsync/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the engine's operations over HTTP using go-chi.
type Handler struct {
	engine  *Engine
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler for engine. Metrics may be nil to disable
// metric recording (e.g. in tests).
func NewHandler(engine *Engine, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{engine: engine, log: log, metrics: m}
}

// Routes registers every operator endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/state", h.GetState)
	r.Get("/timestamps", h.GetTimestamps)
	r.Post("/commands", h.PostCommand)
	r.Route("/streams/{index}", func(r chi.Router) {
		r.Post("/mark", h.Mark)
		r.Post("/reference", h.SetReference)
		r.Post("/nudge", h.Nudge)
	})
	r.Post("/align", h.Align)
	r.Put("/end-policy", h.SetEndPolicy)
	r.Post("/play", h.PlayAll)
	r.Post("/pause", h.PauseAll)
	r.Post("/reset", h.Reset)
	r.Post("/sync-state", h.Save)
	r.Delete("/sync-state", h.ClearSaved)
}

// response is the JSON body returned by every command endpoint.
type response struct {
	Status Status  `json:"status"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// GetState handles GET /state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, response{Status: h.engine.Status()})
}

// GetTimestamps handles GET /timestamps. The default is a text table;
// ?format=json returns the rows.
func (h *Handler) GetTimestamps(w http.ResponseWriter, r *http.Request) {
	rows := h.engine.Timestamps()
	if r.URL.Query().Get("format") == "json" {
		h.writeJSON(w, http.StatusOK, rows)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(RenderTimestamps(rows) + "\n"))
}

// PostCommand handles POST /commands.
// Body: { "kind": "nudge", "stream": 1, "delta": -0.1 }.
func (h *Handler) PostCommand(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.log.Debug("invalid command body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.dispatch(w, cmd)
}

// Mark handles POST /streams/{index}/mark. Body (optional): { "at": 12.5 }.
func (h *Handler) Mark(w http.ResponseWriter, r *http.Request) {
	idx, ok := streamIndex(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var body struct {
		At *float64 `json:"at"`
	}
	if !h.decodeOptional(w, r, &body) {
		return
	}
	h.dispatch(w, Command{Kind: CmdMark, Stream: idx, At: body.At})
}

// SetReference handles POST /streams/{index}/reference.
func (h *Handler) SetReference(w http.ResponseWriter, r *http.Request) {
	idx, ok := streamIndex(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.dispatch(w, Command{Kind: CmdSetReference, Stream: idx})
}

// Nudge handles POST /streams/{index}/nudge. Body (optional): { "delta": -0.1 }.
func (h *Handler) Nudge(w http.ResponseWriter, r *http.Request) {
	idx, ok := streamIndex(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var body struct {
		Delta *float64 `json:"delta"`
	}
	if !h.decodeOptional(w, r, &body) {
		return
	}
	h.dispatch(w, Command{Kind: CmdNudge, Stream: idx, Delta: body.Delta})
}

// Align handles POST /align.
func (h *Handler) Align(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, Command{Kind: CmdStartAlignment})
}

// SetEndPolicy handles PUT /end-policy. Body: { "policy": "loopFinished" }.
func (h *Handler) SetEndPolicy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Policy EndPolicy `json:"policy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid end policy body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.dispatch(w, Command{Kind: CmdSetEndPolicy, Policy: body.Policy})
}

// PlayAll handles POST /play.
func (h *Handler) PlayAll(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, Command{Kind: CmdPlayAll})
}

// PauseAll handles POST /pause.
func (h *Handler) PauseAll(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, Command{Kind: CmdPauseAll})
}

// Reset handles POST /reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, Command{Kind: CmdReset})
}

// Save handles POST /sync-state.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, Command{Kind: CmdSave})
}

// ClearSaved handles DELETE /sync-state.
func (h *Handler) ClearSaved(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, Command{Kind: CmdClear})
}

// dispatch runs cmd and writes the engine status. Recoverable engine errors
// map to 4xx codes; persistence failures are reported with 200 because the
// in-memory state stays authoritative.
func (h *Handler) dispatch(w http.ResponseWriter, cmd Command) {
	if h.metrics != nil {
		h.metrics.IncCommands(string(cmd.Kind))
	}

	res, err := h.engine.Dispatch(cmd)
	resp := response{Status: h.engine.Status()}
	if res.Plan != nil || res.Position != nil {
		resp.Result = &res
	}
	if err == nil {
		h.writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Error = err.Error()
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInsufficientMarks), errors.Is(err, ErrPlayerUnavailable):
		code = http.StatusConflict
	case errors.Is(err, ErrIndexOutOfRange):
		code = http.StatusNotFound
	case errors.Is(err, ErrUnknownCommand), errors.Is(err, ErrUnknownEndPolicy):
		code = http.StatusBadRequest
	case errors.Is(err, ErrPersistenceWriteFailed):
		code = http.StatusOK
	}

	if code >= http.StatusInternalServerError {
		h.log.Error("command failed", slog.String("kind", string(cmd.Kind)), slog.String("error", err.Error()))
	} else {
		h.log.Info("command not applied",
			slog.String("kind", string(cmd.Kind)),
			slog.Int("stream", cmd.Stream),
			slog.String("error", err.Error()))
	}
	h.writeJSON(w, code, resp)
}

// decodeOptional decodes a JSON body when one is present. It writes 400 and
// returns false on malformed input.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	h.log.Debug("invalid body", slog.String("error", err.Error()))
	w.WriteHeader(http.StatusBadRequest)
	return false
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response failed", slog.String("error", err.Error()))
	}
}

// streamIndex parses the {index} URL parameter. Negative values parse and
// are rejected by the engine as out of range.
func streamIndex(r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, false
	}
	return idx, true
}
