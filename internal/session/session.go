// Package session hands out the per-stage data a live stage needs: the
// conversational agent id and a render credential for the stage's avatar.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/koscakluka/pitchlive/core/avatar"
	"github.com/koscakluka/pitchlive/core/stages"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const scopeName = "github.com/koscakluka/pitchlive/internal/session"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	ErrMissingStageID = errors.New("stageId is required")
	ErrUnknownStage   = errors.New("invalid stageId")
)

type Info struct {
	RunID            string `json:"runId"`
	AgentID          string `json:"agentId"`
	RenderCredential string `json:"anamSessionToken"`
}

func (i Info) SessionData() stages.SessionData {
	return stages.SessionData{AgentID: i.AgentID, RenderCredential: i.RenderCredential}
}

type Starter interface {
	// Start prepares a stage. An empty runID starts a new run.
	Start(ctx context.Context, runID, stageID string) (Info, error)
}

type CredentialIssuer interface {
	Issue(ctx context.Context, avatarID string) (avatar.Credential, error)
}

// Local issues sessions in-process. Missing agent ids and credential
// failures are logged and leave the corresponding field empty; the live
// stage reports the session as not initialized.
type Local struct {
	catalog  stages.Catalog
	agentIDs map[string]string
	issuer   CredentialIssuer
}

func NewLocal(catalog stages.Catalog, agentIDs map[string]string, issuer CredentialIssuer) *Local {
	return &Local{catalog: catalog, agentIDs: agentIDs, issuer: issuer}
}

func (l *Local) Start(ctx context.Context, runID, stageID string) (Info, error) {
	ctx, span := tracer.Start(ctx, "start stage session")
	defer span.End()
	span.SetAttributes(attribute.String("stage.id", stageID))

	if stageID == "" {
		return Info{}, ErrMissingStageID
	}
	stage, ok := l.catalog.ByID(stageID)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrUnknownStage, stageID)
	}

	if runID == "" {
		runID = "run_" + uuid.NewString()
	}
	info := Info{RunID: runID, AgentID: l.agentIDs[stageID]}
	if info.AgentID == "" {
		logger.Warn("no agent id configured for stage", "stage", stageID)
	}

	if l.issuer != nil && stage.AvatarID != "" {
		credential, err := l.issuer.Issue(ctx, stage.AvatarID)
		if err != nil {
			span.RecordError(err)
			logger.Error("failed to issue render credential", "stage", stageID, "avatar", stage.AvatarID, "error", err)
		} else {
			info.RenderCredential = credential.SessionToken
		}
	} else {
		logger.Warn("render credentials not configured for stage", "stage", stageID)
	}

	span.SetAttributes(
		attribute.String("stage.run_id", info.RunID),
		attribute.Bool("session.has_agent_id", info.AgentID != ""),
		attribute.Bool("session.has_render_credential", info.RenderCredential != ""),
	)
	logger.Info("stage session started",
		"run_id", info.RunID,
		"stage", stageID,
		"avatar", stage.AvatarID,
		"has_agent_id", info.AgentID != "",
		"has_render_credential", info.RenderCredential != "",
	)
	return info, nil
}
