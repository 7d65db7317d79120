package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/pitchlive/core/transcript"
)

var ErrScoringUnavailable = errors.New("scoring unavailable")

type PassFail string

const (
	Pass PassFail = "pass"
	Fail PassFail = "fail"
)

type StageResult struct {
	Stars       int      `json:"stars" jsonschema:"minimum=1,maximum=5"`
	MoneyRaised int64    `json:"moneyRaised" jsonschema:"minimum=0"`
	Feedback    []string `json:"feedback"`
	PassFail    PassFail `json:"passFail" jsonschema:"enum=pass,enum=fail"`
	TotalRaised int64    `json:"totalRaised" jsonschema:"minimum=0"`
}

// FallbackResult is used whenever a stage ends without a usable score.
func FallbackResult() StageResult {
	return StageResult{
		Stars:       3,
		MoneyRaised: 500000,
		Feedback:    []string{"Stage completed - scoring unavailable"},
		PassFail:    Pass,
		TotalRaised: 500000,
	}
}

// Request is sent on the wire with turn timestamps in Unix milliseconds.
type Request struct {
	RunID      string
	StageID    string
	Transcript []transcript.Turn
}

type Scorer interface {
	Score(ctx context.Context, req Request) (StageResult, error)
}

type wireTurn struct {
	Speaker   transcript.Speaker `json:"speaker" jsonschema:"enum=user,enum=agent"`
	Text      string             `json:"text"`
	Timestamp int64              `json:"timestamp,omitempty" jsonschema:"description=Unix milliseconds" copier:"-"`
}

type wireRequest struct {
	RunID      string     `json:"runId"`
	StageID    string     `json:"stageId"`
	Transcript []wireTurn `json:"transcript"`
}

var copyFields = copier.Copy

func toWireRequest(req Request) (wireRequest, error) {
	turns := make([]wireTurn, 0, len(req.Transcript))
	for i, turn := range req.Transcript {
		var wt wireTurn
		if err := copyFields(&wt, &turn); err != nil {
			return wireRequest{}, fmt.Errorf("error copying turn %d: %w", i, err)
		}
		if !turn.Timestamp.IsZero() {
			wt.Timestamp = turn.Timestamp.UnixMilli()
		}
		turns = append(turns, wt)
	}
	return wireRequest{RunID: req.RunID, StageID: req.StageID, Transcript: turns}, nil
}

func fromWireRequest(req wireRequest) Request {
	turns := make([]transcript.Turn, 0, len(req.Transcript))
	for _, wt := range req.Transcript {
		turn := transcript.Turn{Speaker: wt.Speaker, Text: wt.Text}
		if wt.Timestamp != 0 {
			turn.Timestamp = time.UnixMilli(wt.Timestamp)
		}
		turns = append(turns, turn)
	}
	return Request{RunID: req.RunID, StageID: req.StageID, Transcript: turns}
}

func (r Request) MarshalJSON() ([]byte, error) {
	wire, err := toWireRequest(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wire)
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var wire wireRequest
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = fromWireRequest(wire)
	return nil
}
