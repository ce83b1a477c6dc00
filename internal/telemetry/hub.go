package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sdrlab/txwave/internal/dsp"
	"github.com/sdrlab/txwave/internal/logging"
)

// defaultIQLimit matches the prefix a plotting consumer typically renders.
const defaultIQLimit = 500

// Hub retains the current status, a bounded transition history, and
// fan-outs live updates to subscribers. It also serves the latest IQ
// snapshot and its spectrum on demand, reading from the snapshot source
// on each request rather than retaining sample data itself.
type Hub struct {
	mu           sync.RWMutex
	logger       logging.Logger
	status       Status
	history      []StatusSample
	historyLimit int
	subscribers  map[chan StatusSample]struct{}
	snapshot     SnapshotSource
	params       ParamSink
}

// NewHub builds a telemetry hub with the provided history limit.
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger:       logger.With(logging.Field{Key: "subsystem", Value: "telemetry"}),
		status:       StatusStandby,
		historyLimit: historyLimit,
		subscribers:  make(map[chan StatusSample]struct{}),
	}
}

// SetSnapshotSource wires the latest-buffer reader used by the IQ and
// spectrum endpoints.
func (h *Hub) SetSnapshotSource(src SnapshotSource) {
	h.mu.Lock()
	h.snapshot = src
	h.mu.Unlock()
}

// SetParamSink wires the destination for live parameter updates.
func (h *Hub) SetParamSink(sink ParamSink) {
	h.mu.Lock()
	h.params = sink
	h.mu.Unlock()
}

// ReportStatus implements Reporter and records a status transition.
func (h *Hub) ReportStatus(status Status, detail string) {
	sample := StatusSample{Timestamp: time.Now(), Status: status, Detail: detail}

	h.mu.Lock()
	h.status = status
	h.history = append(h.history, sample)
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- sample:
		default:
		}
	}
	h.mu.Unlock()
}

// Status returns the most recently reported status.
func (h *Hub) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// History returns a copy of the stored status transitions.
func (h *Hub) History() []StatusSample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]StatusSample, len(h.history))
	copy(out, h.history)
	return out
}

// Subscribe registers a listener for live status updates.
func (h *Hub) Subscribe() (chan StatusSample, func()) {
	ch := make(chan StatusSample, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		close(ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) readSnapshot() ([]complex64, uint64, bool) {
	h.mu.RLock()
	src := h.snapshot
	h.mu.RUnlock()
	if src == nil {
		return nil, 0, false
	}
	return src()
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]Status{"status": h.Status()})
}

func (h *Hub) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.History())
}

// iqResponse carries a prefix of the latest snapshot split into I and Q.
type iqResponse struct {
	Seq   uint64    `json:"seq"`
	Total int       `json:"total"`
	I     []float32 `json:"i"`
	Q     []float32 `json:"q"`
}

func (h *Hub) handleIQ(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	buf, seq, ok := h.readSnapshot()
	if !ok {
		http.Error(w, "no data yet", http.StatusNotFound)
		return
	}

	limit := defaultIQLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, fmt.Sprintf("invalid limit %q", raw), http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > len(buf) {
		limit = len(buf)
	}

	resp := iqResponse{Seq: seq, Total: len(buf), I: make([]float32, limit), Q: make([]float32, limit)}
	for i := 0; i < limit; i++ {
		resp.I[i] = real(buf[i])
		resp.Q[i] = imag(buf[i])
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// spectrumResponse carries the dBFS spectrum of the latest snapshot.
type spectrumResponse struct {
	Seq  uint64    `json:"seq"`
	DBFS []float64 `json:"dbfs"`
}

func (h *Hub) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	buf, seq, ok := h.readSnapshot()
	if !ok {
		http.Error(w, "no data yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(spectrumResponse{Seq: seq, DBFS: dsp.SpectrumDBFS(buf)})
}

// paramRequest is a partial parameter update; absent fields are unchanged.
type paramRequest struct {
	FrequencyHz *float64 `json:"frequencyHz,omitempty"`
	GainDB      *float64 `json:"gainDb,omitempty"`
	Amplitude   *float64 `json:"amplitude,omitempty"`
	Waveform    *string  `json:"waveform,omitempty"`
}

func (h *Hub) handleParams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.mu.RLock()
	sink := h.params
	h.mu.RUnlock()
	if sink == nil {
		http.Error(w, "parameter updates not available", http.StatusServiceUnavailable)
		return
	}

	var req paramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid params payload: %v", err), http.StatusBadRequest)
		return
	}

	if req.FrequencyHz != nil {
		if err := sink.SetFrequency(*req.FrequencyHz); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.GainDB != nil {
		if err := sink.SetGain(*req.GainDB); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.Amplitude != nil {
		if err := sink.SetAmplitude(*req.Amplitude); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.Waveform != nil {
		if err := sink.SetWaveform(*req.Waveform); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	h.logger.Debug("parameters updated")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(req)
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	// replay history for immediate display
	for _, sample := range h.History() {
		writeEvent(w, sample)
	}
	flusher.Flush()

	for {
		select {
		case sample, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, sample)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, sample StatusSample) {
	payload, _ := json.Marshal(sample)
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}
