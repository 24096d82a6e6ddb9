package analyzer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sentinelstack/sentinelops/internal/models"
)

func sampleAnomalies() []models.Anomaly {
	return []models.Anomaly{
		{
			Service:        "checkout",
			Metric:         models.MetricErrorRate,
			CurrentValue:   60,
			BaselineMean:   10,
			BaselineStddev: 2,
			ZScore:         25,
			Severity:       models.SeverityP1,
			Timestamp:      time.Now().UTC(),
		},
	}
}

func newTestAnalyzer(t *testing.T, handler http.HandlerFunc) *Analyzer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		BaseURL:   server.URL,
		APIKey:    "test-key",
		Model:     "claude-sonnet-4-6",
		MaxTokens: 512,
		Timeout:   time.Second,
	}, slog.Default())
}

func TestAnalyzeParsesVerdict(t *testing.T) {
	a := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Fatalf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"text":"{\"root_cause\":\"db overload\",\"confidence\":\"high\",\"affected_services\":[\"checkout\"],\"remediation_steps\":[\"scale db\"],\"summary\":\"Checkout errors from database overload\"}"}]}`))
	})

	result := a.Analyze(context.Background(), sampleAnomalies(), nil, nil)
	if result == nil {
		t.Fatalf("expected verdict, got nil")
	}
	if result.RootCause != "db overload" || result.Confidence != "high" {
		t.Fatalf("unexpected verdict: %+v", result)
	}
}

func TestAnalyzeStripsCodeFences(t *testing.T) {
	a := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		body := "```json\n{\"root_cause\":\"cache stampede\",\"confidence\":\"medium\",\"affected_services\":[],\"remediation_steps\":[],\"summary\":\"Cache stampede on payments\"}\n```"
		payload, err := json.Marshal(map[string]any{
			"content": []map[string]string{{"text": body}},
		})
		if err != nil {
			t.Fatalf("marshal response: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	})

	result := a.Analyze(context.Background(), sampleAnomalies(), nil, nil)
	if result == nil {
		t.Fatalf("expected fenced verdict to parse")
	}
	if result.RootCause != "cache stampede" {
		t.Fatalf("unexpected verdict: %+v", result)
	}
}

func TestAnalyzeDegradesOnMalformedOutput(t *testing.T) {
	a := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"text":"I think the root cause is the database."}]}`))
	})

	if result := a.Analyze(context.Background(), sampleAnomalies(), nil, nil); result != nil {
		t.Fatalf("expected nil for non-JSON output, got %+v", result)
	}
}

func TestAnalyzeDegradesOnServerError(t *testing.T) {
	a := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	if result := a.Analyze(context.Background(), sampleAnomalies(), nil, nil); result != nil {
		t.Fatalf("expected nil on server error, got %+v", result)
	}
}

func TestAnalyzeSkipsWithoutConfiguration(t *testing.T) {
	a := New(Config{}, slog.Default())
	if result := a.Analyze(context.Background(), sampleAnomalies(), nil, nil); result != nil {
		t.Fatalf("expected nil without base URL, got %+v", result)
	}
}

func TestAnalyzeEmptyAnomalies(t *testing.T) {
	a := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected for empty anomalies")
	})
	if result := a.Analyze(context.Background(), nil, nil, nil); result != nil {
		t.Fatalf("expected nil for empty anomalies")
	}
}

func TestParseVerdictMissingFields(t *testing.T) {
	if _, err := parseVerdict(`{"confidence":"low"}`); err == nil {
		t.Fatalf("expected error for missing required fields")
	}
}
