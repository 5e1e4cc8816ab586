package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/kwv/posemesh/pgo"
)

// newHTTPServer creates an HTTP server with all endpoints.
func newHTTPServer(tracker *GraphTracker, config *pgo.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasNodes  bool      `json:"hasNodes"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasNodes:  tracker.HasNodes(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Counters and graph sizes
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(tracker.Status()); err != nil {
			log.Printf("Error encoding status: %v", err)
		}
	})

	// Accepted graph as GeoJSON
	mux.HandleFunc("/graph.geojson", func(w http.ResponseWriter, r *http.Request) {
		if !tracker.HasNodes() {
			http.Error(w, "No graph nodes available", http.StatusServiceUnavailable)
			return
		}

		err := tracker.WithFilter(func(filter *pgo.PCM[Belief]) error {
			fc := pgo.ExportGeoJSON(filter, config.Robots)
			w.Header().Set("Content-Type", "application/geo+json")
			w.Header().Set("Cache-Control", "no-cache")
			return json.NewEncoder(w).Encode(fc)
		})
		if err != nil {
			log.Printf("Error encoding GeoJSON: %v", err)
		}
	})

	// Rendered graph as PNG
	mux.HandleFunc("/graph.png", func(w http.ResponseWriter, r *http.Request) {
		if !tracker.HasNodes() {
			http.Error(w, "No graph nodes available", http.StatusServiceUnavailable)
			return
		}

		err := tracker.WithFilter(func(filter *pgo.PCM[Belief]) error {
			renderer := pgo.NewGraphRenderer(filter, config.Robots, config.Render)
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Cache-Control", "no-cache")
			return renderer.RenderToPNG(w)
		})
		if err != nil {
			log.Printf("Error rendering graph PNG: %v", err)
		}
	})

	// Rendered graph as SVG
	mux.HandleFunc("/graph.svg", func(w http.ResponseWriter, r *http.Request) {
		if !tracker.HasNodes() {
			http.Error(w, "No graph nodes available", http.StatusServiceUnavailable)
			return
		}

		err := tracker.WithFilter(func(filter *pgo.PCM[Belief]) error {
			renderer := pgo.NewGraphRenderer(filter, config.Robots, config.Render)
			w.Header().Set("Content-Type", "image/svg+xml")
			w.Header().Set("Cache-Control", "no-cache")
			return renderer.RenderToSVG(w)
		})
		if err != nil {
			log.Printf("Error rendering graph SVG: %v", err)
		}
	})

	return mux
}
