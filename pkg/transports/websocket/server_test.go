package websocket

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harunnryd/tutorvoice/pkg/metrics"
	"github.com/harunnryd/tutorvoice/pkg/providers/mock"
	"github.com/harunnryd/tutorvoice/pkg/session"
	"github.com/harunnryd/tutorvoice/pkg/tutor"
	"github.com/harunnryd/tutorvoice/pkg/vad"
)

const rate = 16000

func utterance() []byte {
	out := make([]byte, rate/2*2)
	voiced := make([]byte, rate*2)
	for i := 0; i < rate; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/rate))
		binary.LittleEndian.PutUint16(voiced[2*i:], uint16(v))
	}
	out = append(out, voiced...)
	return append(out, make([]byte, rate*8/10*2)...)
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	factory := func(id string, c session.Conn) (*session.Session, error) {
		gen := mock.NewGenerator(mock.LLMConfig{ResponseText: "Bonjour ! Une équation se résout pas à pas."})
		return session.New(session.Config{ID: id, VAD: vad.DefaultConfig()}, session.Deps{
			Transcriber:  mock.NewTranscriber(mock.STTConfig{Transcripts: []string{"Une équation ?"}}),
			Orchestrator: tutor.NewOrchestrator(gen, tutor.NewRouter(nil, "")),
			Synthesizer:  mock.NewSynthesizer(mock.TTSConfig{}),
		}, c)
	}
	srv := New(Config{}, factory, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + AudioPath
	ws, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func TestAudioRoundTrip(t *testing.T) {
	_, ts := newTestServer(t)
	ws := dial(t, ts)

	data := utterance()
	for off := 0; off < len(data); off += 3200 {
		end := min(off+3200, len(data))
		if err := ws.WriteMessage(gorilla.BinaryMessage, data[off:end]); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	_ = ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	var types []string
	metas, binaries := 0, 0
	for {
		kind, msg, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (got %v)", err, types)
		}
		if kind == gorilla.BinaryMessage {
			binaries++
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(msg, &m); err != nil {
			t.Fatalf("bad json %q", msg)
		}
		typ := m["type"].(string)
		types = append(types, typ)
		if typ == session.TypeAudioChunkMeta {
			metas++
		}
		if typ == session.TypeLatencyMetrics {
			break
		}
	}
	if types[0] != session.TypeUserText || types[1] != session.TypeAudioReset {
		t.Fatalf("unexpected message order %v", types)
	}
	if metas == 0 || metas != binaries {
		t.Fatalf("expected one binary frame per meta, metas=%d binaries=%d", metas, binaries)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := metrics.NewPrometheusObserver(reg)
	obs.RecordEvent(metrics.Count(metrics.EventSessionOpened, nil))
	_, ts := newTestServer(t, WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health %d %v", resp.StatusCode, body)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(raw), "tutorvoice_events_total") {
		t.Fatalf("metrics output missing counter:\n%s", raw)
	}
}

func TestDrainClosesSessions(t *testing.T) {
	srv, ts := newTestServer(t)
	ws := dial(t, ts)
	deadline := time.Now().Add(2 * time.Second)
	for srv.Sessions() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if srv.Sessions() != 0 {
		t.Fatalf("sessions still open")
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatalf("expected closed connection")
	}

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while draining, got %d", resp.StatusCode)
	}
}

func TestCheckOrigin(t *testing.T) {
	s := New(Config{AllowedOrigins: []string{"https://tutor.example", "localhost:3000"}}, nil)
	cases := map[string]bool{
		"":                      true,
		"https://tutor.example": true,
		"http://localhost:3000": true,
		"https://evil.example":  false,
	}
	for origin, want := range cases {
		r := httptest.NewRequest(http.MethodGet, AudioPath, nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := s.checkOrigin(r); got != want {
			t.Fatalf("origin %q: got %v want %v", origin, got, want)
		}
	}
	if !New(Config{}, nil).checkOrigin(httptest.NewRequest(http.MethodGet, AudioPath, nil)) {
		t.Fatalf("default must allow any origin")
	}
}

func TestStaticIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>tutor</h1>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	srv := New(Config{StaticDir: dir}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "tutor") {
		t.Fatalf("unexpected index %d %q", rec.Code, rec.Body.String())
	}
}
