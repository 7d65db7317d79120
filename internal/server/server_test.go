package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/koscakluka/pitchlive/core/scoring"
	"github.com/koscakluka/pitchlive/core/stages"
	"github.com/koscakluka/pitchlive/core/transcript"
	"github.com/koscakluka/pitchlive/internal/runledger"
	"github.com/koscakluka/pitchlive/internal/session"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(Deps{
		Catalog:  stages.Default,
		Sessions: session.NewLocal(stages.Default, map[string]string{"mom": "agent-mom"}, nil),
		Scorer:   scoring.NewKeywordScorer(rand.New(rand.NewSource(1))),
		Ledger:   runledger.NewMemoryStore(),
	})
}

func post(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestStartSession(t *testing.T) {
	r := newTestRouter(t)

	rec := post(t, r, "/api/session/start", session.StartRequest{StageID: "mom"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var info session.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if info.AgentID != "agent-mom" || info.RunID == "" {
		t.Fatalf("unexpected session info %+v", info)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}

	if rec := post(t, r, "/api/session/start", session.StartRequest{StageID: "unicorn"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown stage, got %d", rec.Code)
	}
	if rec := post(t, r, "/api/session/start", session.StartRequest{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing stage, got %d", rec.Code)
	}
}

func TestCompleteStageRequiresFields(t *testing.T) {
	r := newTestRouter(t)

	rec := post(t, r, "/api/run/stage/complete", map[string]any{"runId": "run_1", "stageId": "mom"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without transcript, got %d", rec.Code)
	}

	rec = post(t, r, "/api/run/stage/complete", map[string]any{"runId": "run_1", "stageId": "mom", "transcript": []any{}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty transcript, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCompleteStageAccumulatesRunTotal(t *testing.T) {
	server := httptest.NewServer(newTestRouter(t))
	defer server.Close()
	client := scoring.NewClient(server.URL)

	turns := []transcript.Turn{{Speaker: transcript.SpeakerUser, Text: "We are building a product to help people", Timestamp: time.Now()}}
	first, err := client.Score(context.Background(), scoring.Request{RunID: "run_total", StageID: "mom", Transcript: turns})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first.TotalRaised != first.MoneyRaised {
		t.Fatalf("expected first total to equal money raised, got %+v", first)
	}

	second, err := client.Score(context.Background(), scoring.Request{RunID: "run_total", StageID: "local-angel", Transcript: turns})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if second.TotalRaised != first.MoneyRaised+second.MoneyRaised {
		t.Fatalf("expected cumulative total %d, got %d", first.MoneyRaised+second.MoneyRaised, second.TotalRaised)
	}
}

func TestListStagesAndSchema(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stages", nil))
	var views []stageView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("failed to decode stages: %v", err)
	}
	if len(views) != 5 || views[0].ID != "mom" || views[0].TimeLimitSeconds != 45 {
		t.Fatalf("unexpected stages %+v", views)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/schema", nil))
	var schemas map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &schemas); err != nil {
		t.Fatalf("failed to decode schemas: %v", err)
	}
	if _, ok := schemas["request"]; !ok {
		t.Fatalf("expected request schema, got keys %v", schemas)
	}
}
