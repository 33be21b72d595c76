package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/CivicScrape/internal/config"
)

// fakeSleeper records requested waits without sleeping.
type fakeSleeper struct {
	waits []time.Duration
}

func (f *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	f.waits = append(f.waits, d)
	return nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: 80, B: uint8(y * 30), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// imageAPI serves /images/generations with scripted statuses and the
// generated image at /img.png.
type imageAPI struct {
	calls    atomic.Int32
	statuses []int
	body     string
	png      []byte
	prompts  []string
}

func (a *imageAPI) handler(srvURL func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(a.png)
		case "/images/generations":
			n := int(a.calls.Add(1)) - 1
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			if p, ok := req["prompt"].(string); ok {
				a.prompts = append(a.prompts, p)
			}
			if n < len(a.statuses) {
				w.WriteHeader(a.statuses[n])
				_, _ = w.Write([]byte(a.body))
				return
			}
			fmt.Fprintf(w, `{"data":[{"url":"%s/img.png"}]}`, srvURL())
		default:
			http.NotFound(w, r)
		}
	}
}

func newImageServer(t *testing.T, api *imageAPI) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(api.handler(func() string { return srv.URL }))
	t.Cleanup(srv.Close)
	return srv
}

func testImagesConfig(endpoint string) config.ImagesConfig {
	cfg := config.DefaultConfig().Images
	cfg.OpenAIEndpoint = endpoint
	return cfg
}

func TestImageGeneratorSuccess(t *testing.T) {
	api := &imageAPI{png: testPNG(t)}
	srv := newImageServer(t, api)

	g := NewImageGenerator(testImagesConfig(srv.URL), "sk-test", testLogger)
	img := g.Generate(context.Background(), "capitol building")
	require.NotNil(t, img)
	assert.Equal(t, api.png, img.Data)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, 1024, img.Width)
	assert.Equal(t, 1024, img.Height)
	require.Len(t, api.prompts, 1)
	assert.Equal(t, "Professional news photography: capitol building. Photorealistic, high quality, journalistic style.", api.prompts[0])
}

func TestImageGeneratorRetriesRateLimits(t *testing.T) {
	api := &imageAPI{png: testPNG(t), statuses: []int{429, 429}, body: `{"error":{"code":"rate_limit_exceeded"}}`}
	srv := newImageServer(t, api)

	sleeper := &fakeSleeper{}
	g := NewImageGenerator(testImagesConfig(srv.URL), "sk-test", testLogger, WithSleep(sleeper.Sleep))
	img := g.Generate(context.Background(), "hospital")
	require.NotNil(t, img)
	assert.Equal(t, int32(3), api.calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
}

func TestImageGeneratorGivesUpAfterMaxRetries(t *testing.T) {
	api := &imageAPI{statuses: []int{429, 429, 429, 429, 429}}
	srv := newImageServer(t, api)

	sleeper := &fakeSleeper{}
	g := NewImageGenerator(testImagesConfig(srv.URL), "sk-test", testLogger, WithSleep(sleeper.Sleep))
	assert.Nil(t, g.Generate(context.Background(), "hospital"))
	assert.Equal(t, int32(4), api.calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.waits)
}

func TestImageGeneratorContentPolicyIsNotRetried(t *testing.T) {
	api := &imageAPI{statuses: []int{400}, body: `{"error":{"code":"content_policy_violation"}}`}
	srv := newImageServer(t, api)

	sleeper := &fakeSleeper{}
	g := NewImageGenerator(testImagesConfig(srv.URL), "sk-test", testLogger, WithSleep(sleeper.Sleep))
	assert.Nil(t, g.Generate(context.Background(), "something blocked"))
	assert.Equal(t, int32(1), api.calls.Load())
	assert.Empty(t, sleeper.waits)
}

func TestImageGeneratorWithoutKey(t *testing.T) {
	api := &imageAPI{}
	srv := newImageServer(t, api)

	g := NewImageGenerator(testImagesConfig(srv.URL), "", testLogger)
	assert.Nil(t, g.Generate(context.Background(), "x"))
	assert.Equal(t, "", g.GenerateURL(context.Background(), "x"))
	assert.Equal(t, int32(0), api.calls.Load())
}

func TestToJPEG(t *testing.T) {
	out := ToJPEG(testPNG(t), 85, testLogger)
	require.True(t, len(out) > 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, out[:2])

	junk := []byte("not an image")
	assert.Equal(t, junk, ToJPEG(junk, 85, testLogger))
}
