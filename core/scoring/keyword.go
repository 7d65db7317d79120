package scoring

import (
	"context"
	"math"
	"math/rand"
	"slices"
	"strings"
	"sync"

	"github.com/koscakluka/pitchlive/core/transcript"
)

type criteria struct {
	keywords []string
	minMoney int64
	maxMoney int64
	minWords int
}

type feedbackTemplates struct {
	positive     []string
	constructive []string
}

const defaultStage = "mom"

var stageCriteria = map[string]criteria{
	"mom": {
		keywords: []string{"building", "help", "people", "problem", "solution", "love", "believe", "excited"},
		minMoney: 500,
		maxMoney: 5000,
		minWords: 20,
	},
	"local-angel": {
		keywords: []string{"vision", "opportunity", "market", "team", "passion", "customers", "growth", "potential"},
		minMoney: 10000,
		maxMoney: 50000,
		minWords: 60,
	},
	"vc-single": {
		keywords: []string{"revenue", "tam", "sam", "metrics", "unit economics", "burn", "runway", "moat"},
		minMoney: 100000,
		maxMoney: 500000,
		minWords: 80,
	},
	"yc-traction": {
		keywords: []string{"growth", "week over week", "users", "revenue", "retention", "mrr", "arr", "momentum"},
		minMoney: 250000,
		maxMoney: 1000000,
		minWords: 80,
	},
	"shark-tank": {
		keywords: []string{"marketing", "brand", "customers", "sales", "distribution", "scale", "viral", "acquisition"},
		minMoney: 200000,
		maxMoney: 2000000,
		minWords: 100,
	},
}

var stageFeedback = map[string]feedbackTemplates{
	"mom": {
		positive: []string{
			"Your passion really came through!",
			"You explained it so clearly even mom gets it",
			"The personal connection to the problem is compelling",
			"Great energy - mom is proud!",
		},
		constructive: []string{
			"Try to simplify the explanation even more",
			"Share more about why this matters to you",
			"Remember to breathe and slow down",
		},
	},
	"local-angel": {
		positive: []string{
			"Your story really resonated",
			"The vision is inspiring and achievable",
			"Clear understanding of the opportunity",
			"Authentic and trustworthy presence",
		},
		constructive: []string{
			"Be more specific about near-term milestones",
			"Share what keeps you up at night",
			"Connect your background to this problem more",
		},
	},
	"vc-single": {
		positive: []string{
			"Strong command of the numbers",
			"Clear and concise pitch",
			"Compelling market opportunity",
			"Professional and confident delivery",
		},
		constructive: []string{
			"Tighten up the unit economics explanation",
			"Address competitive landscape proactively",
			"Be more specific on use of funds",
		},
	},
	"yc-traction": {
		positive: []string{
			"Impressive growth trajectory",
			"Clear focus on metrics that matter",
			"Strong evidence of product-market fit",
			"YC would be lucky to have you!",
		},
		constructive: []string{
			"Lead with your best metric faster",
			`Explain the "why" behind the growth`,
			"Show retention alongside acquisition",
		},
	},
	"shark-tank": {
		positive: []string{
			"Great marketing instincts",
			"You understand your customer deeply",
			"The brand potential is massive",
			"Shark-worthy pitch!",
		},
		constructive: []string{
			"Think bigger on distribution channels",
			"Show more customer testimonials",
			"Make the ask more dramatic",
		},
	},
}

// KeywordScorer scores a transcript locally from keyword coverage, number
// of exchanges and how much the user said. Unknown stages are scored with
// the first stage's criteria.
type KeywordScorer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewKeywordScorer(rng *rand.Rand) *KeywordScorer {
	return &KeywordScorer{rng: rng}
}

func (s *KeywordScorer) Score(ctx context.Context, req Request) (StageResult, error) {
	_, span := tracer.Start(ctx, "score stage locally")
	defer span.End()

	crit, ok := stageCriteria[req.StageID]
	if !ok {
		crit = stageCriteria[defaultStage]
	}
	templates, ok := stageFeedback[req.StageID]
	if !ok {
		templates = stageFeedback[defaultStage]
	}

	text := strings.ToLower(transcript.UserText(req.Transcript))

	matches := 0
	for _, keyword := range crit.keywords {
		if strings.Contains(text, keyword) {
			matches++
		}
	}
	keywordScore := float64(matches) / float64(len(crit.keywords))
	engagementScore := math.Min(float64(len(req.Transcript))/8, 1)
	wordCount := len(strings.Fields(text))
	verbosityScore := math.Min(float64(wordCount)/float64(crit.minWords), 1)
	overall := keywordScore*0.4 + engagementScore*0.3 + verbosityScore*0.3

	s.mu.Lock()
	defer s.mu.Unlock()

	stars := int(math.Round(overall*4)) + 1
	if s.rng.Float64() > 0.7 {
		stars++
	}
	stars = max(1, min(5, stars))

	money := int64(math.Round(float64(crit.minMoney) + float64(crit.maxMoney-crit.minMoney)*overall))

	passFail := Fail
	if stars >= 2 {
		passFail = Pass
	}

	numPositive := min((stars+1)/2, 2)
	numConstructive := 1
	if stars <= 3 {
		numConstructive = 2
	}
	feedback := append(s.pick(templates.positive, numPositive), s.pick(templates.constructive, numConstructive)...)

	logger.Info("stage scored",
		"run_id", req.RunID,
		"stage_id", req.StageID,
		"stars", stars,
		"money_raised", money,
		"word_count", wordCount,
		"keyword_matches", matches,
	)

	return StageResult{
		Stars:       stars,
		MoneyRaised: money,
		Feedback:    feedback,
		PassFail:    passFail,
		TotalRaised: money,
	}, nil
}

func (s *KeywordScorer) pick(from []string, n int) []string {
	shuffled := slices.Clone(from)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:min(n, len(shuffled))]
}
