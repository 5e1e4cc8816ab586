package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kwv/posemesh/pgo"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func testConfig() *pgo.Config {
	return &pgo.Config{
		Robots: []pgo.RobotConfig{
			{ID: "a", Color: "#FF0000"},
		},
	}
}

func emptyServer(t *testing.T) http.Handler {
	t.Helper()
	return newHTTPServer(NewGraphTracker(10, 10, nil), testConfig())
}

func populatedServer(t *testing.T) http.Handler {
	t.Helper()
	tracker := seededTracker(t)

	// A turn so the trajectory is not a single straight line
	if _, err := tracker.Apply(odometryMsg("a", 4, 5, 0, 1, 0)); err != nil {
		t.Fatalf("odometry turn: %v", err)
	}
	return newHTTPServer(tracker, testConfig())
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// /health and /status
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	rec := get(t, emptyServer(t), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status   string `json:"status"`
		HasNodes bool   `json:"hasNodes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding health body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status field = %q, want ok", body.Status)
	}
	if body.HasNodes {
		t.Error("hasNodes = true for an empty tracker")
	}
}

func TestStatusEndpoint(t *testing.T) {
	rec := get(t, populatedServer(t), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var status TrackerStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding status body: %v", err)
	}
	if status.Processed != 6 || status.Accepted != 6 {
		t.Errorf("Processed=%d Accepted=%d, want 6 and 6", status.Processed, status.Accepted)
	}
	if status.Robots["a"] != 6 {
		t.Errorf("Robots[a] = %d, want 6", status.Robots["a"])
	}
}

// ---------------------------------------------------------------------------
// /graph.geojson
// ---------------------------------------------------------------------------

func TestGeoJSONEndpointEmpty(t *testing.T) {
	rec := get(t, emptyServer(t), "/graph.geojson")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 with no nodes", rec.Code)
	}
}

func TestGeoJSONEndpoint(t *testing.T) {
	rec := get(t, populatedServer(t), "/graph.geojson")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q, want application/geo+json", ct)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &fc); err != nil {
		t.Fatalf("decoding GeoJSON body: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		t.Errorf("type = %q, want FeatureCollection", fc.Type)
	}

	nodes := 0
	for _, f := range fc.Features {
		if f.Properties["kind"] == "node" {
			nodes++
		}
	}
	if nodes != 6 {
		t.Errorf("node feature count = %d, want 6", nodes)
	}
}

// ---------------------------------------------------------------------------
// /graph.png and /graph.svg
// ---------------------------------------------------------------------------

func TestRenderEndpointsEmpty(t *testing.T) {
	h := emptyServer(t)
	for _, path := range []string{"/graph.png", "/graph.svg"} {
		rec := get(t, h, path)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503 with no nodes", path, rec.Code)
		}
	}
}

func TestPNGEndpoint(t *testing.T) {
	rec := get(t, populatedServer(t), "/graph.png")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Errorf("response is not a decodable PNG: %v", err)
	}
}

func TestSVGEndpoint(t *testing.T) {
	rec := get(t, populatedServer(t), "/graph.svg")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q, want image/svg+xml", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("<svg")) {
		t.Error("response does not contain an <svg tag")
	}
}
