package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/koscakluka/pitchlive/core/avatar"
	"github.com/koscakluka/pitchlive/core/stages"
)

type fakeIssuer struct {
	calls    atomic.Int32
	avatarID atomic.Value
	err      error
}

func (f *fakeIssuer) Issue(ctx context.Context, avatarID string) (avatar.Credential, error) {
	f.calls.Add(1)
	f.avatarID.Store(avatarID)
	if f.err != nil {
		return avatar.Credential{}, f.err
	}
	return avatar.Credential{SessionToken: "token-" + avatarID}, nil
}

func TestLocalStartIssuesCredentialForStageAvatar(t *testing.T) {
	issuer := &fakeIssuer{}
	starter := NewLocal(stages.Default, map[string]string{"mom": "agent-mom"}, issuer)

	info, err := starter.Start(context.Background(), "", "mom")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(info.RunID, "run_") {
		t.Fatalf("expected generated run id, got %q", info.RunID)
	}
	if info.AgentID != "agent-mom" {
		t.Fatalf("expected agent-mom, got %q", info.AgentID)
	}
	mom, _ := stages.Default.ByID("mom")
	if got := issuer.avatarID.Load(); got != mom.AvatarID {
		t.Fatalf("expected credential for avatar %q, got %v", mom.AvatarID, got)
	}
	if info.RenderCredential != "token-"+mom.AvatarID {
		t.Fatalf("unexpected credential %q", info.RenderCredential)
	}
}

func TestLocalStartKeepsRunIDAndToleratesIssuerFailure(t *testing.T) {
	issuer := &fakeIssuer{err: errors.New("upstream down")}
	starter := NewLocal(stages.Default, nil, issuer)

	info, err := starter.Start(context.Background(), "run_fixed", "vc-single")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if info.RunID != "run_fixed" {
		t.Fatalf("expected run id to be kept, got %q", info.RunID)
	}
	if info.AgentID != "" || info.RenderCredential != "" {
		t.Fatalf("expected empty session data, got %+v", info)
	}
	data := info.SessionData()
	if data.AgentID != "" || data.RenderCredential != "" {
		t.Fatalf("unexpected session data %+v", data)
	}
}

func TestLocalStartRejectsBadStage(t *testing.T) {
	starter := NewLocal(stages.Default, nil, nil)
	if _, err := starter.Start(context.Background(), "", ""); !errors.Is(err, ErrMissingStageID) {
		t.Fatalf("expected ErrMissingStageID, got %v", err)
	}
	if _, err := starter.Start(context.Background(), "", "unicorn"); !errors.Is(err, ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
}

func TestClientStart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/session/start" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.StageID != "mom" || req.RunID != "run_1" {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"runId":            "run_1",
			"agentId":          "agent-mom",
			"anamSessionToken": "token",
		})
	}))
	defer server.Close()

	info, err := NewClient(server.URL+"/").Start(context.Background(), "run_1", "mom")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if info.AgentID != "agent-mom" || info.RenderCredential != "token" || info.RunID != "run_1" {
		t.Fatalf("unexpected info %+v", info)
	}
}
