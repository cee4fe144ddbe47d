package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/tessera/pkg/errors"
	"github.com/matzehuels/tessera/pkg/hsv"
	"github.com/matzehuels/tessera/pkg/observability"
	"github.com/matzehuels/tessera/pkg/pipeline"
	"github.com/matzehuels/tessera/pkg/tiles"
)

var (
	red  = color.NRGBA{255, 0, 0, 255}
	blue = color.NRGBA{0, 0, 255, 255}
)

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func tileDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, c := range map[string]color.NRGBA{"red": red, "blue": blue} {
		f, err := os.Create(filepath.Join(dir, name+".jpg"))
		if err != nil {
			t.Fatal(err)
		}
		if err := jpeg.Encode(f, solid(4, 4, c), &jpeg.Options{Quality: 95}); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
	m := &tiles.Manifest{CellSize: 4, Tiles: []tiles.Record{
		tiles.NewRecord("red", "raw/red.png", hsv.New(0, 1, 1)),
		tiles.NewRecord("blue", "raw/blue.png", hsv.New(0.667, 1, 1)),
	}}
	if err := tiles.WriteManifest(dir, m); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	store, err := tiles.Open(tileDir(t), logger)
	if err != nil {
		t.Fatal(err)
	}
	if opts.OutputSize == 0 {
		opts.OutputSize = 8
	}
	s, err := New(pipeline.NewRunner(nil, nil, logger), store, opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// targetPNG is an 8x8 image, red on the left half and blue on the right,
// so fitting it to the default test size leaves it unchanged.
func targetPNG(t *testing.T) []byte {
	t.Helper()
	img := solid(8, 8, red)
	for y := 0; y < 8; y++ {
		for x := 4; x < 8; x++ {
			img.Set(x, y, blue)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func postMosaic(t *testing.T, ts *httptest.Server, query string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/mosaic"+query, "image/png", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("GET /healthz = %d %v", resp.StatusCode, body)
	}
}

func TestCandidates(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, err := http.Get(ts.URL + "/candidates")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body candidatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.CellSize != 4 || body.Count != 2 {
		t.Fatalf("cell_size = %d, count = %d; want 4, 2", body.CellSize, body.Count)
	}
	if body.Candidates[0].ID != "red" || body.Candidates[1].ID != "blue" {
		t.Errorf("candidates out of manifest order: %+v", body.Candidates)
	}
}

func TestMosaic(t *testing.T) {
	ts := newTestServer(t, Options{})

	// Two candidates × repeat 2 cover the four cells exactly; the second
	// request only succeeds if usage counts start fresh.
	for i := 0; i < 2; i++ {
		resp := postMosaic(t, ts, "?repeat=2&variant=mosaic", targetPNG(t))
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("request %d: status %d: %s", i, resp.StatusCode, body)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Content-Type = %q", ct)
		}
		if cells := resp.Header.Get("X-Tessera-Cells"); cells != "4" {
			t.Errorf("X-Tessera-Cells = %q, want 4", cells)
		}
		img, err := jpeg.Decode(resp.Body)
		if err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
			t.Errorf("response is %v, want 8x8", b)
		}
	}
}

func TestMosaicBlendFallback(t *testing.T) {
	ts := newTestServer(t, Options{BlendFactor: 0.3})

	tests := []struct {
		query string
		want  string
	}{
		{"", "0.3"},
		{"?blend=0.8", "0.8"},
		{"?blend=2", "0.5"},
		{"?blend=0", "0.5"},
	}
	for _, tt := range tests {
		resp := postMosaic(t, ts, tt.query, targetPNG(t))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%q: status %d", tt.query, resp.StatusCode)
		}
		if got := resp.Header.Get("X-Tessera-Blend-Factor"); got != tt.want {
			t.Errorf("%q: blend factor = %s, want %s", tt.query, got, tt.want)
		}
	}
}

func TestMosaicErrors(t *testing.T) {
	ts := newTestServer(t, Options{})

	tests := []struct {
		name   string
		query  string
		body   []byte
		status int
		code   string
	}{
		{"repeat exhausted", "?repeat=1", nil, http.StatusUnprocessableEntity, "NO_ELIGIBLE_CANDIDATE"},
		{"repeat not a number", "?repeat=x", nil, http.StatusBadRequest, "INVALID_CONFIGURATION"},
		{"negative repeat", "?repeat=-1", nil, http.StatusBadRequest, "INVALID_CONFIGURATION"},
		{"zero size", "?size=0", nil, http.StatusBadRequest, "INVALID_CONFIGURATION"},
		{"huge size", fmt.Sprintf("?size=%d", MaxOutputSize+1), nil, http.StatusBadRequest, "INVALID_CONFIGURATION"},
		{"unknown variant", "?variant=sepia", nil, http.StatusBadRequest, "INVALID_CONFIGURATION"},
		{"garbage body", "", []byte("not an image"), http.StatusBadRequest, "IMAGE_DECODE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			if body == nil {
				body = targetPNG(t)
			}
			resp := postMosaic(t, ts, tt.query, body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			var e map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if e["code"] != tt.code || e["error"] == "" {
				t.Errorf("error body = %v, want code %s", e, tt.code)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, err := http.Get(ts.URL + "/mosaic")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /mosaic = %d, want 405", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New(errors.ErrCodeNoEligibleCandidate, "x"), http.StatusUnprocessableEntity},
		{fmt.Errorf("assign: %w", errors.New(errors.ErrCodeNoEligibleCandidate, "x")), http.StatusUnprocessableEntity},
		{errors.New(errors.ErrCodeInvalidInput, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeInvalidConfig, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeImageDecode, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeEmptyImage, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeUnreadablePixels, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeFileNotFound, "tile gone"), http.StatusInternalServerError},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

type countingServerHooks struct {
	observability.NoopServerHooks
	mu        sync.Mutex
	requests  int
	responses map[string]int
}

func (h *countingServerHooks) OnRequest(context.Context, string, string) {
	h.mu.Lock()
	h.requests++
	h.mu.Unlock()
}

func (h *countingServerHooks) OnResponse(_ context.Context, method, route string, status int, _ time.Duration) {
	h.mu.Lock()
	h.responses[fmt.Sprintf("%s %s %d", method, route, status)]++
	h.mu.Unlock()
}

func TestServerHooks(t *testing.T) {
	hooks := &countingServerHooks{responses: map[string]int{}}
	observability.SetServerHooks(hooks)
	defer observability.Reset()

	ts := newTestServer(t, Options{})
	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if hooks.requests != 3 {
		t.Errorf("requests = %d, want 3", hooks.requests)
	}
	if n := hooks.responses["GET /healthz 200"]; n != 3 {
		t.Errorf("responses = %v, want 3 × GET /healthz 200", hooks.responses)
	}
}

func TestNewValidates(t *testing.T) {
	logger := log.NewWithOptions(io.Discard, log.Options{})
	store, err := tiles.Open(tileDir(t), logger)
	if err != nil {
		t.Fatal(err)
	}
	runner := pipeline.NewRunner(nil, nil, logger)

	if _, err := New(nil, store, Options{}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("nil runner: error = %v", err)
	}
	if _, err := New(runner, store, Options{Repeat: -1}); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("negative repeat: error = %v", err)
	}
	if _, err := New(runner, store, Options{OutputSize: MaxOutputSize + 1}); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("huge output size: error = %v", err)
	}
}
