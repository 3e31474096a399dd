package inference

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/bom-cli/internal/metrics"
	"github.com/sells-group/bom-cli/internal/model"
)

// Service runs the structured inference tasks of the pipeline. All calls
// share one concurrency bound.
type Service struct {
	completer Completer
	sem       *semaphore.Weighted
	knowledge KnowledgeBase
}

// Option configures a Service.
type Option func(*Service)

// WithMaxConcurrency bounds in-flight completions. Zero or less means
// unbounded.
func WithMaxConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(int64(n))
		} else {
			s.sem = nil
		}
	}
}

// WithKnowledgeBase sets the sourcing preferences used by Recommend.
func WithKnowledgeBase(kb KnowledgeBase) Option {
	return func(s *Service) {
		s.knowledge = kb
	}
}

// NewService creates a Service. The default concurrency bound is 10.
func NewService(c Completer, opts ...Option) *Service {
	s := &Service{completer: c, sem: semaphore.NewWeighted(10)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) complete(ctx context.Context, task string, req Request) (string, error) {
	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return "", eris.Wrapf(err, "inference: %s: wait for slot", task)
		}
		defer s.sem.Release(1)
	}

	start := time.Now()
	text, err := s.completer.Complete(ctx, req)
	metrics.InferenceDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.InferenceCalls.WithLabelValues(task, "error").Inc()
		return "", eris.Wrapf(err, "inference: %s", task)
	}
	metrics.InferenceCalls.WithLabelValues(task, "ok").Inc()
	return text, nil
}

func (s *Service) structured(ctx context.Context, task, system, user string, schema *jsonschema.Schema, out any) error {
	text, err := s.complete(ctx, task, Request{System: system, User: user, JSON: true})
	if err != nil {
		return err
	}
	if err := decodeValidated(text, schema, out); err != nil {
		metrics.InferenceCalls.WithLabelValues(task, "invalid").Inc()
		zap.L().Warn("inference: rejected model output", zap.String("task", task), zap.Error(err))
		return eris.Wrapf(err, "inference: %s", task)
	}
	return nil
}

// MapColumns infers which header holds each semantic field from a sample of
// rows. Columns the model names that are not in the header are dropped.
func (s *Service) MapColumns(ctx context.Context, sample []model.RawRow) (model.ColumnMapping, error) {
	if len(sample) == 0 {
		return model.ColumnMapping{}, eris.New("inference: map columns: no rows")
	}
	var m model.ColumnMapping
	if err := s.structured(ctx, "map_columns", mappingSystem, mappingPrompt(MarkdownTable(sample)), mappingSchema, &m); err != nil {
		return model.ColumnMapping{}, err
	}

	header := sample[0].Columns()
	for _, field := range []**string{&m.ManufacturerPartNumber, &m.Designators, &m.Quantity, &m.Description} {
		*field = matchHeader(header, *field)
	}
	zap.L().Info("inference: column mapping", zap.String("mapping", m.String()))
	return m, nil
}

func matchHeader(header []string, col *string) *string {
	if col == nil {
		return nil
	}
	want := strings.TrimSpace(*col)
	for _, h := range header {
		if h == want {
			return &h
		}
	}
	for _, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), want) {
			return &h
		}
	}
	if want != "" {
		zap.L().Warn("inference: mapped column not in header, ignoring", zap.String("column", want))
	}
	return nil
}

type parsedRow struct {
	ManufacturerPartNumber *string          `json:"manufacturer_part_number"`
	Designators            []string         `json:"designators"`
	Quantity               *float64         `json:"quantity"`
	Parameters             model.Parameters `json:"parameters"`
	ParsingNotes           *string          `json:"parsing_notes"`
}

// ParseRow extracts a ParsedItem skeleton from one row. A missing quantity
// in the model output defaults to the designator count.
func (s *Service) ParseRow(ctx context.Context, row model.RawRow, mapping model.ColumnMapping) (*model.ParsedItem, error) {
	var pr parsedRow
	if err := s.structured(ctx, "parse_row", rowSystem, rowPrompt(row.DataJSON(), mapping), parsedItemSchema, &pr); err != nil {
		return nil, err
	}

	item := &model.ParsedItem{
		ManufacturerPartNumber: nonEmpty(pr.ManufacturerPartNumber),
		Designators:            splitDesignators(pr.Designators),
		Parameters: model.Parameters{
			ElectricalValue:  nonEmpty(pr.Parameters.ElectricalValue),
			Tolerance:        nonEmpty(pr.Parameters.Tolerance),
			Voltage:          nonEmpty(pr.Parameters.Voltage),
			PackageFootprint: nonEmpty(pr.Parameters.PackageFootprint),
		},
		ParsingNotes: nonEmpty(pr.ParsingNotes),
	}
	if pr.Quantity != nil {
		item.Quantity = int(math.Round(*pr.Quantity))
	} else {
		item.Quantity = len(item.Designators)
	}
	return item, nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") || strings.EqualFold(v, "n/a") {
		return nil
	}
	return &v
}

// splitDesignators trims entries and splits any that still hold a
// comma or space separated list.
func splitDesignators(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		for _, f := range strings.FieldsFunc(d, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\t'
		}) {
			out = append(out, f)
		}
	}
	return out
}

type verdictJSON struct {
	IsValid   bool   `json:"is_valid"`
	Reasoning string `json:"reasoning"`
}

// Judge decides whether candidate can replace original under assumptions.
func (s *Service) Judge(ctx context.Context, assumptions model.Assumptions, original, candidate model.PartSummary) (model.EvaluationVerdict, error) {
	var v verdictJSON
	if err := s.structured(ctx, "judge", judgeSystem, judgePrompt(assumptions, original, candidate), verdictSchema, &v); err != nil {
		return model.EvaluationVerdict{}, err
	}
	return model.EvaluationVerdict{
		OriginalMPN:  original.MPN,
		CandidateMPN: candidate.MPN,
		IsValid:      v.IsValid,
		Reasoning:    strings.TrimSpace(v.Reasoning),
	}, nil
}

// JudgePart decides whether a single part satisfies assumptions.
func (s *Service) JudgePart(ctx context.Context, assumptions model.Assumptions, part model.PartSummary) (model.EvaluationVerdict, error) {
	var v verdictJSON
	if err := s.structured(ctx, "judge_part", judgePartSystem, judgePartPrompt(assumptions, part), verdictSchema, &v); err != nil {
		return model.EvaluationVerdict{}, err
	}
	return model.EvaluationVerdict{
		OriginalMPN: part.MPN,
		IsValid:     v.IsValid,
		Reasoning:   strings.TrimSpace(v.Reasoning),
	}, nil
}

// GenerateQuestions asks for clarifying sourcing questions about the sample,
// including the total order quantity.
func (s *Service) GenerateQuestions(ctx context.Context, sample []model.RawRow) ([]string, error) {
	if len(sample) == 0 {
		return nil, eris.New("inference: generate questions: no rows")
	}
	var out struct {
		Questions []string `json:"questions"`
	}
	if err := s.structured(ctx, "questions", questionsSystem, questionsPrompt(MarkdownTable(sample)), questionsSchema, &out); err != nil {
		return nil, err
	}
	qs := make([]string, 0, len(out.Questions))
	for _, q := range out.Questions {
		if q = strings.TrimSpace(q); q != "" {
			qs = append(qs, q)
		}
	}
	return qs, nil
}

// Recommend writes a Markdown report ranking the candidates against the
// original under assumptions.
func (s *Service) Recommend(ctx context.Context, assumptions model.Assumptions, original model.PartSummary, candidates []model.PartSummary) (string, error) {
	text, err := s.complete(ctx, "recommend", Request{
		System: recommendSystem,
		User:   recommendPrompt(assumptions, original, candidates, s.knowledge),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
