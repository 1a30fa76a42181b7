// Package content generates personalized outreach text (cover letters and
// recruiter messages) for stored jobs.
package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobdigest/internal/model"
	"jobdigest/internal/scoring"
)

// requirementsCap bounds the job-description excerpt in the prompt.
const requirementsCap = 1000

type textGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

type contentStore interface {
	GetResume(ctx context.Context) (*model.Resume, error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
	SaveJob(ctx context.Context, job *model.Job) error
}

// Generator writes cover letters and recruiter messages and stores them on
// the job record.
type Generator struct {
	store  contentStore
	gen    textGenerator
	logger *zap.Logger
	now    func() time.Time
}

func New(store contentStore, gen textGenerator, logger *zap.Logger) *Generator {
	return &Generator{store: store, gen: gen, logger: logger, now: time.Now}
}

// Generate produces the requested content kind for jobID and saves it under
// the job's generated map, replacing any earlier version of the same kind.
func (g *Generator) Generate(ctx context.Context, jobID, kind, instructions string) (string, error) {
	if kind != model.ContentCoverLetter && kind != model.ContentRecruiterMessage {
		return "", fmt.Errorf("unknown content kind: %s", kind)
	}

	resume, err := g.store.GetResume(ctx)
	if err != nil {
		return "", err
	}
	if resume == nil || resume.Text == "" {
		return "", fmt.Errorf("no resume uploaded, content generation requires a resume")
	}

	job, err := g.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", fmt.Errorf("job not found: %s", jobID)
	}

	prompt := buildPrompt(kind, job, resume.Text, instructions)

	g.logger.Debug("content generation request",
		zap.String("job_id", jobID),
		zap.String("kind", kind),
	)

	text, err := g.gen.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", kind, err)
	}

	if job.Generated == nil {
		job.Generated = make(map[string]*model.GeneratedContent)
	}
	job.Generated[kind] = &model.GeneratedContent{
		Content:     text,
		GeneratedAt: g.now().UTC(),
	}

	if err := g.store.SaveJob(ctx, job); err != nil {
		return "", err
	}

	g.logger.Info("content generated",
		zap.String("job_id", jobID),
		zap.String("kind", kind),
		zap.Int("length", len(text)),
	)
	return text, nil
}

func buildPrompt(kind string, job *model.Job, resume, instructions string) string {
	var b strings.Builder

	b.WriteString(systemPrompt(kind))
	b.WriteString("\n\nCandidate Resume:\n\n")
	b.WriteString(resume)

	fmt.Fprintf(&b, "\n\nWrite a %s for this position:\n\nJob Title: %s\nCompany: %s",
		kindLabel(kind), job.Title, job.Company)
	if job.Location != "" {
		fmt.Fprintf(&b, "\nLocation: %s", job.Location)
	}

	fmt.Fprintf(&b, "\n\nJob Description:\n%s", keyRequirements(job.Description))

	if instructions != "" {
		fmt.Fprintf(&b, "\n\nAdditional instructions: %s", instructions)
	}

	return b.String()
}

func kindLabel(kind string) string {
	if kind == model.ContentCoverLetter {
		return "cover letter"
	}
	return "recruiter message"
}

func systemPrompt(kind string) string {
	isCoverLetter := kind == model.ContentCoverLetter

	form := "short recruiter message (under 100 words)"
	structure := `STRUCTURE:
- Hook: Why you are reaching out about this specific role (1 sentence)
- Relevance: 1-2 specific points connecting your background to the role
- Ask: Simple, low-pressure call to action
- Total: Under 100 words`
	closing := "Write ONLY the message text. No subject line, no greeting like \"Dear Hiring Manager\"."

	if isCoverLetter {
		form = "cover letter (3-4 paragraphs)"
		structure = `STRUCTURE:
- Opening: Connect your experience to their specific needs (1-2 sentences)
- Body: 2-3 concrete examples of relevant work with numbers when possible (2 paragraphs)
- Close: Clear next step, keep it casual (1-2 sentences)
- Total: 3-4 paragraphs`
		closing = "Write ONLY the cover letter text. No subject line. Include a natural greeting and sign-off."
	}

	return fmt.Sprintf(`You are an expert career advisor. Write a %s that sounds like a real person wrote it.

TONE: Professional but conversational. Approachable and natural, not stiff or robotic. Write like you're emailing a colleague, not writing a formal letter.

%s

CRITICAL RULES:
1. Reference specific skills and experiences from the resume that match the job
2. Use concrete examples with numbers and specifics when possible
3. Keep sentences varied in length (mix short and long)
4. Start with a relevant insight or connection, NOT a generic opener

NEVER use these phrases (they sound robotic and AI-generated):
- "I am writing to express my interest"
- "I am excited to apply"
- "Leverage my skills"
- "Proven track record"
- "Results-driven"
- "Think outside the box"
- "Hit the ground running"
- "I would love the opportunity"
- "I am confident that"
- "Passionate about"
- "Dynamic team"
- "Fast-paced environment"
- "Strong communication skills"

%s`, form, structure, closing)
}

// keyRequirements reuses the scoring extraction to keep the prompt focused on
// requirement-like sections, capped for token cost.
func keyRequirements(description string) string {
	if strings.TrimSpace(description) == "" {
		return "No job description provided."
	}

	core := scoring.ExtractJobCore(&model.Job{Description: description})
	if _, body, found := strings.Cut(core, "Job Description:\n"); found && strings.TrimSpace(body) != "" {
		description = body
	}

	runes := []rune(strings.TrimSpace(description))
	if len(runes) > requirementsCap {
		return string(runes[:requirementsCap])
	}
	return string(runes)
}
