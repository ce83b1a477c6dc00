package telemetry

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sdrlab/txwave/internal/logging"
)

// fakeSink records parameter updates and can reject them.
type fakeSink struct {
	frequency float64
	gain      float64
	amplitude float64
	waveform  string
	rejectAll error
}

func (f *fakeSink) SetFrequency(hz float64) error {
	if f.rejectAll != nil {
		return f.rejectAll
	}
	f.frequency = hz
	return nil
}

func (f *fakeSink) SetGain(db float64) error {
	if f.rejectAll != nil {
		return f.rejectAll
	}
	f.gain = db
	return nil
}

func (f *fakeSink) SetAmplitude(a float64) error {
	if f.rejectAll != nil {
		return f.rejectAll
	}
	f.amplitude = a
	return nil
}

func (f *fakeSink) SetWaveform(name string) error {
	if f.rejectAll != nil {
		return f.rejectAll
	}
	f.waveform = name
	return nil
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := logging.New(logging.Error, logging.Text, io.Discard)
	hub := NewHub(5, logger)
	ws := NewWebServer("127.0.0.1:0", hub, logger)
	srv := httptest.NewServer(ws.srv.Handler)
	t.Cleanup(srv.Close)
	return hub, srv
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestStatusAndHistoryEndpoints(t *testing.T) {
	hub, srv := newTestHub(t)

	var status map[string]Status
	getJSON(t, srv.URL+"/api/status", &status)
	if status["status"] != StatusStandby {
		t.Fatalf("initial status = %s, want %s", status["status"], StatusStandby)
	}

	hub.ReportStatus(StatusConnecting, "pluto.local")
	hub.ReportStatus(StatusStreamingHW, "")

	getJSON(t, srv.URL+"/api/status", &status)
	if status["status"] != StatusStreamingHW {
		t.Fatalf("status = %s, want %s", status["status"], StatusStreamingHW)
	}

	var history []StatusSample
	getJSON(t, srv.URL+"/api/history", &history)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Status != StatusConnecting || history[0].Detail != "pluto.local" {
		t.Fatalf("history[0] = %+v", history[0])
	}
}

func TestHistoryIsBounded(t *testing.T) {
	hub, srv := newTestHub(t)
	for i := 0; i < 20; i++ {
		hub.ReportStatus(StatusStreamingSim, "")
	}

	var history []StatusSample
	getJSON(t, srv.URL+"/api/history", &history)
	if len(history) != 5 {
		t.Fatalf("history length = %d, want bound of 5", len(history))
	}
}

func TestIQEndpoint(t *testing.T) {
	hub, srv := newTestHub(t)

	resp := getJSON(t, srv.URL+"/api/iq", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("empty snapshot status = %d, want 404", resp.StatusCode)
	}

	buf := make([]complex64, 1024)
	for i := range buf {
		buf[i] = complex(float32(i), -float32(i))
	}
	hub.SetSnapshotSource(func() ([]complex64, uint64, bool) { return buf, 7, true })

	var iq iqResponse
	getJSON(t, srv.URL+"/api/iq", &iq)
	if iq.Seq != 7 || iq.Total != 1024 {
		t.Fatalf("seq=%d total=%d, want 7/1024", iq.Seq, iq.Total)
	}
	if len(iq.I) != defaultIQLimit || len(iq.Q) != defaultIQLimit {
		t.Fatalf("default prefix = %d/%d, want %d", len(iq.I), len(iq.Q), defaultIQLimit)
	}
	if iq.I[3] != 3 || iq.Q[3] != -3 {
		t.Fatalf("sample 3 = (%v, %v)", iq.I[3], iq.Q[3])
	}

	getJSON(t, srv.URL+"/api/iq?limit=8", &iq)
	if len(iq.I) != 8 {
		t.Fatalf("limited prefix = %d, want 8", len(iq.I))
	}

	getJSON(t, srv.URL+"/api/iq?limit=4096", &iq)
	if len(iq.I) != 1024 {
		t.Fatalf("oversized limit should clamp to %d, got %d", 1024, len(iq.I))
	}

	resp = getJSON(t, srv.URL+"/api/iq?limit=bogus", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", resp.StatusCode)
	}
}

func TestSpectrumEndpoint(t *testing.T) {
	hub, srv := newTestHub(t)

	buf := make([]complex64, 256)
	for i := range buf {
		buf[i] = complex(1, 0)
	}
	hub.SetSnapshotSource(func() ([]complex64, uint64, bool) { return buf, 1, true })

	var spectrum spectrumResponse
	getJSON(t, srv.URL+"/api/spectrum", &spectrum)
	if spectrum.Seq != 1 {
		t.Fatalf("seq = %d, want 1", spectrum.Seq)
	}
	if len(spectrum.DBFS) != 256 {
		t.Fatalf("spectrum bins = %d, want 256", len(spectrum.DBFS))
	}
}

func TestParamsEndpoint(t *testing.T) {
	hub, srv := newTestHub(t)
	sink := &fakeSink{}
	hub.SetParamSink(sink)

	post := func(body string) *http.Response {
		t.Helper()
		resp, err := http.Post(srv.URL+"/api/params", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST params: %v", err)
		}
		resp.Body.Close()
		return resp
	}

	resp := post(`{"frequencyHz": 2.4e9, "gainDb": 30, "amplitude": 0.5, "waveform": "square"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, want 200", resp.StatusCode)
	}
	if sink.frequency != 2.4e9 || sink.gain != 30 || sink.amplitude != 0.5 || sink.waveform != "square" {
		t.Fatalf("sink = %+v", sink)
	}

	resp = post(`{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed payload status = %d, want 400", resp.StatusCode)
	}

	sink.rejectAll = io.ErrUnexpectedEOF
	resp = post(`{"gainDb": 95}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("rejected update status = %d, want 400", resp.StatusCode)
	}
}

func TestParamsWithoutSink(t *testing.T) {
	_, srv := newTestHub(t)
	resp, err := http.Post(srv.URL+"/api/params", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST params: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestMethodGuards(t *testing.T) {
	_, srv := newTestHub(t)

	resp, err := http.Post(srv.URL+"/api/status", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST /api/status = %d, want 405", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/params")
	if err != nil {
		t.Fatalf("GET params: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/params = %d, want 405", resp.StatusCode)
	}
}

func TestMultiReporterFansOut(t *testing.T) {
	a := NewHub(5, logging.New(logging.Error, logging.Text, io.Discard))
	b := NewHub(5, logging.New(logging.Error, logging.Text, io.Discard))

	m := MultiReporter{a, nil, b}
	m.ReportStatus(StatusStreamingSim, "")

	if a.Status() != StatusStreamingSim || b.Status() != StatusStreamingSim {
		t.Fatalf("fan-out missed a reporter: %s / %s", a.Status(), b.Status())
	}
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	hub, _ := newTestHub(t)
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.ReportStatus(StatusConnecting, "x")
	select {
	case sample := <-ch:
		if sample.Status != StatusConnecting || sample.Detail != "x" {
			t.Fatalf("sample = %+v", sample)
		}
	default:
		t.Fatal("no sample delivered to subscriber")
	}
}
