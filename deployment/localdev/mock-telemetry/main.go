package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"time"
)

// Canned telemetry backend for local development. The checkout service
// is scripted to spike its error count so a full incident fires within
// the first few polling cycles.

type metricQuery struct {
	Service       string `json:"service"`
	Kind          string `json:"kind"`
	Percentile    int    `json:"percentile"`
	BucketMinutes int    `json:"bucket_minutes"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/telemetry/services", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"services": []string{"checkout", "payments", "inventory"},
		})
	})

	mux.HandleFunc("/api/v1/telemetry/metrics", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var q metricQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if q.BucketMinutes > 0 {
			values := make([]float64, 12)
			for i := range values {
				values[i] = baselineValue(q) + rand.Float64()
			}
			writeJSON(w, map[string]any{"values": values})
			return
		}
		writeJSON(w, map[string]any{"value": currentValue(q)})
	})

	mux.HandleFunc("/api/v1/telemetry/events", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"events": []map[string]any{
				{
					"service":   "checkout",
					"level":     "error",
					"message":   "payment gateway timeout after 3 retries",
					"timestamp": time.Now().Add(-2 * time.Minute).UTC().Format(time.RFC3339),
					"trace_id":  "trace-abc",
				},
				{
					"service":   "payments",
					"level":     "warning",
					"message":   "connection pool at 95% utilization",
					"timestamp": time.Now().Add(-3 * time.Minute).UTC().Format(time.RFC3339),
				},
			},
		})
	})

	mux.HandleFunc("/api/v1/telemetry/runbooks", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"runbooks": []map[string]any{
				{
					"title":             "Checkout payment gateway timeouts",
					"incident_date":     "2026-05-14T09:30:00Z",
					"services_affected": []string{"checkout", "payments"},
					"root_cause":        "payments connection pool exhausted under burst traffic",
					"resolution_steps":  []string{"scale payments pool", "enable request shedding"},
					"tags":              []string{"error_rate", "timeouts"},
					"score":             0.92,
				},
			},
		})
	})

	logger := log.New(log.Writer(), "telemetry-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8080",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func baselineValue(q metricQuery) float64 {
	if q.Kind == "latency_percentile" {
		return 120
	}
	return 10
}

// currentValue spikes checkout errors far above the scripted baseline.
func currentValue(q metricQuery) float64 {
	if q.Service == "checkout" && q.Kind == "error_count" {
		return 60 + rand.Float64()*5
	}
	return baselineValue(q) + rand.Float64()
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
