package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"jobdigest/internal/apierr"
	"jobdigest/internal/model"
	"jobdigest/internal/scoring"
	"jobdigest/internal/util"
)

//go:embed rubric.md
var rubric string

const (
	defaultMaxLogLength = 200

	resumeCacheID   = "default"
	resumeCacheName = "jobdigest-resume"

	failedReasoning = "Scoring failed after retries"
)

// scoreSchema constrains the response so parsing never has to guess at the
// shape. All five dimensions are required alongside the overall score.
var scoreSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"score": {
			Type:        genai.TypeInteger,
			Description: "Overall match score 0-100",
		},
		"reasoning": {
			Type:        genai.TypeString,
			Description: "Brief explanation of score focusing on key factors",
		},
		"skills_match": {
			Type:        genai.TypeInteger,
			Description: "Technical skills alignment score",
		},
		"experience_level": {
			Type:        genai.TypeInteger,
			Description: "Years of experience match",
		},
		"tech_stack_alignment": {
			Type:        genai.TypeInteger,
			Description: "Technology/framework match",
		},
		"title_relevance": {
			Type:        genai.TypeInteger,
			Description: "Job title relevance to career path",
		},
		"industry_fit": {
			Type:        genai.TypeInteger,
			Description: "Industry and domain alignment",
		},
	},
	Required: []string{
		"score", "reasoning", "skills_match", "experience_level",
		"tech_stack_alignment", "title_relevance", "industry_fit",
	},
}

type generator interface {
	EnsureResumeCache(ctx context.Context, cacheID, displayName, payload string) (string, error)
	GenerateJSON(ctx context.Context, prompt, cacheName string, schema *genai.Schema) (string, error)
}

// Scorer evaluates jobs through a Generator. Per-job API failures are
// absorbed into a failed Result so a batch run can keep going.
type Scorer struct {
	gen       generator
	logger    *zap.Logger
	maxLogLen int
	retry     apierr.Options
}

func NewScorer(gen generator, logger *zap.Logger) *Scorer {
	return &Scorer{
		gen:       gen,
		logger:    logger,
		maxLogLen: defaultMaxLogLength,
		retry: apierr.Options{
			Observer: apierr.ObserverFunc(func(attempt int, delay time.Duration, err error) {
				logger.Warn("retrying scoring request",
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay),
					zap.Error(err),
				)
			}),
		},
	}
}

type scorePayload struct {
	Score              int    `json:"score"`
	Reasoning          string `json:"reasoning"`
	SkillsMatch        int    `json:"skills_match"`
	ExperienceLevel    int    `json:"experience_level"`
	TechStackAlignment int    `json:"tech_stack_alignment"`
	TitleRelevance     int    `json:"title_relevance"`
	IndustryFit        int    `json:"industry_fit"`
}

// Score evaluates one job against the resume. The rubric and resume ride in
// cached content when available; if the cache cannot be created the full
// prefix is inlined into the prompt instead.
func (s *Scorer) Score(ctx context.Context, job *model.Job, resume string) (*scoring.Result, error) {
	core := scoring.ExtractJobCore(job)

	prompt := "Evaluate this job opportunity:\n\n" + core

	cacheName, err := s.gen.EnsureResumeCache(ctx, resumeCacheID, resumeCacheName, cachePayload(resume))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("resume cache unavailable, inlining prefix", zap.Error(err))
		cacheName = ""
		prompt = cachePayload(resume) + "\n\n" + prompt
	}

	s.logger.Debug("scoring request",
		zap.String("job_id", job.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", util.TruncateForLog(prompt, s.maxLogLen)),
		zap.Bool("cached", cacheName != ""),
	)

	raw, err := apierr.Do(ctx, func(ctx context.Context) (string, error) {
		return s.gen.GenerateJSON(ctx, prompt, cacheName, scoreSchema)
	}, s.retry)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error("scoring failed", zap.String("job_id", job.ID), zap.Error(err))
		return &scoring.Result{Failed: true, Reasoning: failedReasoning}, nil
	}

	s.logger.Debug("scoring response",
		zap.String("job_id", job.ID),
		zap.String("response_preview", util.TruncateForLog(raw, s.maxLogLen)),
	)

	var payload scorePayload
	if err := json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		s.logger.Error("unparseable scoring response",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return &scoring.Result{Failed: true, Reasoning: failedReasoning}, nil
	}

	return &scoring.Result{
		Value:     clampScore(payload.Score),
		Reasoning: payload.Reasoning,
		Details: &model.ScoreDetails{
			SkillsMatch:        clampScore(payload.SkillsMatch),
			ExperienceLevel:    clampScore(payload.ExperienceLevel),
			TechStackAlignment: clampScore(payload.TechStackAlignment),
			TitleRelevance:     clampScore(payload.TitleRelevance),
			IndustryFit:        clampScore(payload.IndustryFit),
		},
	}, nil
}

// cachePayload is the stable prefix shared by every scoring call.
func cachePayload(resume string) string {
	return fmt.Sprintf("%s\n\nCandidate Resume:\n\n%s", strings.TrimSpace(rubric), resume)
}

// extractJSON unwraps a fenced code block if the model added one despite the
// JSON response mode.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
