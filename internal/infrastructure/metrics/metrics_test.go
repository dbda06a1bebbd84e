package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestRecorderExposesCounters(t *testing.T) {
	t.Parallel()

	r := New()
	r.ArticleIngested("tech")
	r.ArticleIngested("tech")
	r.ArticleEnriched("tech")
	r.ArticleRated("brasil")
	r.ItemSkipped("ingest", "fetch_failed")
	r.BriefOutcome("tech", "persisted")

	body := scrape(t, r)
	for _, want := range []string{
		`meridiano_articles_ingested_total{profile="tech"} 2`,
		`meridiano_articles_enriched_total{profile="tech"} 1`,
		`meridiano_articles_rated_total{profile="brasil"} 1`,
		`meridiano_items_skipped_total{reason="fetch_failed",stage="ingest"} 1`,
		`meridiano_brief_runs_total{outcome="persisted",profile="tech"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in scrape output", want)
		}
	}
}

func TestObserveModelCall(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObserveModelCall("chat", 200*time.Millisecond, nil)
	r.ObserveModelCall("chat", 3*time.Second, errors.New("timeout"))
	r.ObserveModelCall("embedding", 50*time.Millisecond, nil)

	body := scrape(t, r)
	for _, want := range []string{
		`meridiano_model_call_duration_seconds_count{kind="chat"} 2`,
		`meridiano_model_call_duration_seconds_count{kind="embedding"} 1`,
		`meridiano_model_call_failures_total{kind="chat"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in scrape output", want)
		}
	}
	if strings.Contains(body, `meridiano_model_call_failures_total{kind="embedding"}`) {
		t.Fatalf("successful embedding call counted as failure")
	}
}

func TestRecordersAreIndependent(t *testing.T) {
	t.Parallel()

	a, b := New(), New()
	a.ArticleIngested("default")
	if strings.Contains(scrape(t, b), `articles_ingested_total{profile="default"}`) {
		t.Fatalf("recorders share state")
	}
}
