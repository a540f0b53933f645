package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"qwenedit/internal/imaging"
	"qwenedit/internal/manager"
	"qwenedit/pkg/types"
)

// mockService records Process calls and answers with processFn.
type mockService struct {
	ready     bool
	health    types.HealthResponse
	processFn func(ctx context.Context, in manager.ProcessInput) (manager.ProcessOutput, error)

	mu    sync.Mutex
	calls []manager.ProcessInput
}

func (m *mockService) Health() types.HealthResponse { return m.health }
func (m *mockService) Ready() bool                  { return m.ready }
func (m *mockService) ModelID() string              { return "Qwen/Qwen-Image-Edit" }

func (m *mockService) Process(ctx context.Context, in manager.ProcessInput) (manager.ProcessOutput, error) {
	m.mu.Lock()
	m.calls = append(m.calls, in)
	m.mu.Unlock()
	if m.processFn != nil {
		return m.processFn(ctx, in)
	}
	return manager.ProcessOutput{JobID: "job", Image: in.Image, ModelUsed: m.ModelID(), Duration: time.Millisecond}, nil
}

func (m *mockService) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockService) lastCall() manager.ProcessInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

func redPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	b, err := imaging.SolidPNG(w, h, color.RGBA{R: 255, A: 255})
	if err != nil {
		t.Fatalf("SolidPNG: %v", err)
	}
	return b
}

// pngHeader builds a PNG holding only an IHDR chunk for w x h RGBA pixels.
func pngHeader(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8], ihdr[9] = 8, 6
	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func postJSON(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/process", &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func processBody(t *testing.T, prompt string) map[string]any {
	t.Helper()
	return map[string]any{
		"image_base64": base64.StdEncoding.EncodeToString(redPNG(t, 8, 8)),
		"prompt":       prompt,
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var e types.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return e
}
