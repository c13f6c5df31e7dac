// Black-box benchmarks against a running engine. They measure the canvas
// read and patch paths end to end (HTTP, validation, Postgres) and skip
// themselves when nothing is listening.
//
// Usage:
//
//	# Start the engine with request limiting off, then:
//	ENGINE_URL=http://localhost:8080 go test -bench=. ./perf_tests/canvases
//
// RATE_LIMIT_ENABLED=false on the engine side; otherwise the per-user
// request limiter throttles the loop long before the interesting code does.
package canvases_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

var (
	engineURL = getEnv("ENGINE_URL", "http://localhost:8080")
	perfUser  = getEnv("PERF_USER_ID", "perf-tester")
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func request(method, path string, body interface{}) (*http.Response, error) {
	var buf io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, engineURL+path, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-User-ID", perfUser)
	req.Header.Set("Content-Type", "application/json")

	return http.DefaultClient.Do(req)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func skipUnlessRunning(b *testing.B) {
	resp, err := http.Get(engineURL + "/health")
	if err != nil {
		b.Skip("engine not running")
	}
	drain(resp)
}

func createCanvas(b *testing.B, name string) string {
	resp, err := request(http.MethodPost, "/api/v1/canvases", map[string]string{"name": name})
	if err != nil {
		b.Fatalf("create canvas: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		b.Fatalf("create canvas: status %d", resp.StatusCode)
	}

	var canvas struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&canvas); err != nil {
		b.Fatalf("decode canvas: %v", err)
	}
	return canvas.ID
}

// textNodeOps returns the add operations for one text node with its output
// handle, the smallest unit a canvas patch ever adds.
func textNodeOps(value string) []map[string]interface{} {
	nodeID := uuid.NewString()
	return []map[string]interface{}{
		{
			"op":   "add",
			"path": "/nodes/-",
			"value": map[string]interface{}{
				"id":     nodeID,
				"type":   "text",
				"config": map[string]interface{}{"value": value},
			},
		},
		{
			"op":   "add",
			"path": "/handles/-",
			"value": map[string]interface{}{
				"id":        uuid.NewString(),
				"nodeId":    nodeID,
				"type":      "Output",
				"dataTypes": []string{"Text"},
				"label":     "Text",
				"order":     0,
				"required":  false,
			},
		},
	}
}

func patchCanvas(b *testing.B, canvasID string, ops []map[string]interface{}) {
	resp, err := request(http.MethodPatch, "/api/v1/canvases/"+canvasID,
		map[string]interface{}{"operations": ops})
	if err != nil {
		b.Fatalf("patch canvas: %v", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		b.Fatalf("patch canvas: status %d: %s", resp.StatusCode, body)
	}
}

// BenchmarkCanvasFetch measures the full-document read on a 30-node canvas:
// snapshot load, result attachment, JSON encoding.
func BenchmarkCanvasFetch(b *testing.B) {
	skipUnlessRunning(b)

	canvasID := createCanvas(b, fmt.Sprintf("perf-fetch-%d", time.Now().Unix()))
	var ops []map[string]interface{}
	for i := 0; i < 30; i++ {
		ops = append(ops, textNodeOps(fmt.Sprintf("node %d", i))...)
	}
	patchCanvas(b, canvasID, ops)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := request(http.MethodGet, "/api/v1/canvases/"+canvasID, nil)
		if err != nil {
			b.Fatalf("fetch: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			b.Fatalf("fetch: status %d", resp.StatusCode)
		}
		drain(resp)
	}
}

// BenchmarkGraphPatch measures one config replace per iteration: snapshot
// load, whitelist, RFC 6902 apply, graph revalidation, transactional
// replace, reload.
func BenchmarkGraphPatch(b *testing.B) {
	skipUnlessRunning(b)

	canvasID := createCanvas(b, fmt.Sprintf("perf-patch-%d", time.Now().Unix()))
	patchCanvas(b, canvasID, textNodeOps("seed"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ops := []map[string]interface{}{{
			"op":    "replace",
			"path":  "/nodes/0/config",
			"value": map[string]interface{}{"value": fmt.Sprintf("rev %d", i)},
		}}

		resp, err := request(http.MethodPatch, "/api/v1/canvases/"+canvasID,
			map[string]interface{}{"operations": ops})
		if err != nil {
			b.Fatalf("patch: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			b.Fatalf("patch: status %d", resp.StatusCode)
		}
		drain(resp)
	}
}
