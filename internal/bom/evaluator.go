package bom

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bom-cli/internal/metrics"
	"github.com/sells-group/bom-cli/internal/model"
)

// Judge decides whether parts suit a project. *inference.Service satisfies it.
type Judge interface {
	Judge(ctx context.Context, assumptions model.Assumptions, original, candidate model.PartSummary) (model.EvaluationVerdict, error)
	JudgePart(ctx context.Context, assumptions model.Assumptions, part model.PartSummary) (model.EvaluationVerdict, error)
	Recommend(ctx context.Context, assumptions model.Assumptions, original model.PartSummary, candidates []model.PartSummary) (string, error)
}

// ErrNotFound is returned by Recommend when the job or part is unknown.
var ErrNotFound = eris.New("bom: not found")

// Evaluator judges alternatives for parts of a stored job. Lookup problems
// are reported as invalid verdicts, never as errors.
type Evaluator struct {
	jobs  JobStore
	judge Judge
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(jobs JobStore, judge Judge) *Evaluator {
	return &Evaluator{jobs: jobs, judge: judge}
}

// Evaluate judges whether candidateMPN is an acceptable substitute for
// originalMPN in job jobID.
func (e *Evaluator) Evaluate(ctx context.Context, jobID, originalMPN, candidateMPN string, assumptions model.Assumptions) model.EvaluationVerdict {
	item, reason := e.findItem(ctx, jobID, originalMPN)
	if item == nil {
		return e.invalid(originalMPN, candidateMPN, reason)
	}
	var similar model.SimilarPart
	ok := false
	if item.Catalog != nil {
		similar, ok = item.Catalog.FindSimilar(candidateMPN)
	}
	if !ok {
		return e.invalid(originalMPN, candidateMPN,
			fmt.Sprintf("alternative %q not found among similar parts of %q", candidateMPN, originalMPN))
	}
	return e.judgePair(ctx, assumptions, item, similar)
}

// EvaluateAll judges every similar part of originalMPN. The verdicts follow
// the order of the similar parts.
func (e *Evaluator) EvaluateAll(ctx context.Context, jobID, originalMPN string, assumptions model.Assumptions) []model.EvaluationVerdict {
	item, reason := e.findItem(ctx, jobID, originalMPN)
	if item == nil {
		return []model.EvaluationVerdict{e.invalid(originalMPN, "", reason)}
	}
	if item.Catalog == nil || len(item.Catalog.SimilarParts) == 0 {
		return []model.EvaluationVerdict{}
	}

	candidates := item.Catalog.SimilarParts
	verdicts := make([]model.EvaluationVerdict, len(candidates))
	var g errgroup.Group
	for i, sp := range candidates {
		g.Go(func() error {
			verdicts[i] = e.judgePair(ctx, assumptions, item, sp)
			return nil
		})
	}
	_ = g.Wait()
	return verdicts
}

// EvaluatePart judges the original part itself against the assumptions.
func (e *Evaluator) EvaluatePart(ctx context.Context, jobID, mpn string, assumptions model.Assumptions) model.EvaluationVerdict {
	item, reason := e.findItem(ctx, jobID, mpn)
	if item == nil {
		return e.invalid(mpn, "", reason)
	}
	v, err := e.judge.JudgePart(ctx, assumptions, SummarizeItem(item))
	if err != nil {
		zap.L().Error("bom: part judgement failed", zap.String("mpn", mpn), zap.Error(err))
		return e.invalid(mpn, "", "internal error: "+err.Error())
	}
	v.OriginalMPN = mpn
	v.CandidateMPN = ""
	e.record(v)
	return v
}

// Recommend writes a procurement report comparing the original part with
// its similar parts.
func (e *Evaluator) Recommend(ctx context.Context, jobID, mpn string, assumptions model.Assumptions) (string, error) {
	item, reason := e.findItem(ctx, jobID, mpn)
	if item == nil {
		return "", eris.Wrap(ErrNotFound, reason)
	}
	var candidates []model.PartSummary
	if item.Catalog != nil {
		for _, sp := range item.Catalog.SimilarParts {
			candidates = append(candidates, SummarizeSimilar(sp))
		}
	}
	report, err := e.judge.Recommend(ctx, assumptions, SummarizeItem(item), candidates)
	if err != nil {
		return "", eris.Wrapf(err, "bom: recommend for %s", mpn)
	}
	return report, nil
}

// findItem returns the item for mpn or a reason it could not be found.
func (e *Evaluator) findItem(ctx context.Context, jobID, mpn string) (*model.ParsedItem, string) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		zap.L().Error("bom: job lookup failed", zap.String("job_id", jobID), zap.Error(err))
		return nil, "internal error: " + err.Error()
	}
	if job == nil {
		return nil, fmt.Sprintf("job %q not found", jobID)
	}
	item, ok := job.FindItem(mpn)
	if !ok {
		return nil, fmt.Sprintf("original part %q not found in job %q", mpn, jobID)
	}
	return item, ""
}

func (e *Evaluator) judgePair(ctx context.Context, assumptions model.Assumptions, item *model.ParsedItem, sp model.SimilarPart) model.EvaluationVerdict {
	original := item.MPN()
	v, err := e.judge.Judge(ctx, assumptions, SummarizeItem(item), SummarizeSimilar(sp))
	if err != nil {
		zap.L().Error("bom: alternative judgement failed",
			zap.String("original", original),
			zap.String("candidate", sp.MPN),
			zap.Error(err),
		)
		return e.invalid(original, sp.MPN, "internal error: "+err.Error())
	}
	v.OriginalMPN = original
	v.CandidateMPN = sp.MPN
	e.record(v)
	return v
}

func (e *Evaluator) invalid(original, candidate, reason string) model.EvaluationVerdict {
	metrics.Evaluations.WithLabelValues("error").Inc()
	return model.EvaluationVerdict{
		OriginalMPN:  original,
		CandidateMPN: candidate,
		IsValid:      false,
		Reasoning:    reason,
	}
}

func (e *Evaluator) record(v model.EvaluationVerdict) {
	if v.IsValid {
		metrics.Evaluations.WithLabelValues("valid").Inc()
	} else {
		metrics.Evaluations.WithLabelValues("invalid").Inc()
	}
}
