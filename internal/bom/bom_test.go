package bom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/sells-group/bom-cli/internal/catalog"
	"github.com/sells-group/bom-cli/internal/model"
	"github.com/sells-group/bom-cli/pkg/nexar"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func strPtr(s string) *string { return &s }

var header = []string{"Part Number", "Ref Des", "Qty", "Description"}

func mapping() model.ColumnMapping {
	return model.ColumnMapping{
		ManufacturerPartNumber: strPtr("Part Number"),
		Designators:            strPtr("Ref Des"),
		Quantity:               strPtr("Qty"),
		Description:            strPtr("Description"),
	}
}

// rowParser reads the mapped columns directly and fails on rows whose
// description is "garbage".
type rowParser struct {
	calls atomic.Int32
}

func (p *rowParser) ParseRow(_ context.Context, row model.RawRow, m model.ColumnMapping) (*model.ParsedItem, error) {
	p.calls.Add(1)
	if row.Text(*m.Description) == "garbage" {
		return nil, errors.New("inference: invalid output")
	}
	item := &model.ParsedItem{}
	if mpn := row.Text(*m.ManufacturerPartNumber); mpn != "" {
		item.ManufacturerPartNumber = strPtr(mpn)
	}
	for _, d := range strings.Split(row.Text(*m.Designators), ",") {
		if d = strings.TrimSpace(d); d != "" {
			item.Designators = append(item.Designators, d)
		}
	}
	item.Quantity = 99
	return item, nil
}

type fakeDirectory struct {
	mu    sync.Mutex
	parts map[string]nexar.Part
	calls int
}

func (d *fakeDirectory) SearchMPN(_ context.Context, mpn string) ([]nexar.Part, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	p, ok := d.parts[mpn]
	if !ok {
		return nil, nil
	}
	return []nexar.Part{p}, nil
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	err  error
}

func newMemJobs() *memJobs { return &memJobs{jobs: map[string]*model.Job{}} }

func (s *memJobs) PutJob(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *memJobs) GetJob(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if j, ok := s.jobs[id]; ok {
		return j.Clone(), nil
	}
	return nil, nil
}

type staticMapper struct {
	m   model.ColumnMapping
	err error
	got int
}

func (s *staticMapper) MapColumns(_ context.Context, sample []model.RawRow) (model.ColumnMapping, error) {
	s.got = len(sample)
	return s.m, s.err
}

func resistorPart() nexar.Part {
	return nexar.Part{
		MPN:              "RC0402JR-071RL",
		Manufacturer:     nexar.Manufacturer{Name: "Yageo"},
		ShortDescription: "RES SMD 1 OHM 5% 1/16W 0402",
		Specs: []nexar.PartSpec{
			{Attribute: nexar.Attribute{Name: "Resistance"}, Value: "1", Units: "Ω"},
			{Attribute: nexar.Attribute{Name: "Tolerance"}, Value: "5", Units: "%"},
		},
		Sellers: []nexar.PartSeller{{
			Country: "US",
			Company: nexar.Company{Name: "Digi-Key"},
			Offers:  []nexar.Offer{{InventoryLevel: 1000, Prices: []nexar.Price{{Quantity: 1, Price: 0.1, Currency: "USD"}}}},
		}},
		SimilarParts: []nexar.Part{
			{MPN: "ERJ-2GEJ1R0X", Manufacturer: nexar.Manufacturer{Name: "Panasonic"}},
			{MPN: "CRCW04021R00JNED", Manufacturer: nexar.Manufacturer{Name: "Vishay"}},
		},
	}
}

type harness struct {
	parser *rowParser
	dir    *fakeDirectory
	jobs   *memJobs
	mapper *staticMapper
	orch   *Orchestrator
}

func newHarness() *harness {
	h := &harness{
		parser: &rowParser{},
		dir:    &fakeDirectory{parts: map[string]nexar.Part{"RC0402JR-071RL": resistorPart()}},
		jobs:   newMemJobs(),
		mapper: &staticMapper{m: mapping()},
	}
	worker := NewWorker(h.parser, catalog.NewClient(h.dir, catalog.NewMemoryCache()))
	h.orch = NewOrchestrator(h.mapper, worker, h.jobs, Config{MaxConcurrentLookups: 3, HeadRows: 2})
	return h
}

func sampleRows() []model.RawRow {
	return []model.RawRow{
		model.NewRawRow(1, header, []any{"RC0402JR-071RL", "R1,R2", 2.0, "RES 1R 0402"}),
		model.NewRawRow(2, header, []any{"UNKNOWN-123", "R3", "", "mystery"}),
		model.NewRawRow(3, header, []any{"", "", "", "garbage"}),
	}
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness()

	job, err := h.orch.Run(context.Background(), "job-1", sampleRows())
	require.NoError(t, err)
	assert.Equal(t, 2, h.mapper.got, "mapping samples the head rows")
	require.Len(t, job.Results, 3)

	first := job.Results[0]
	require.NotNil(t, first.Item)
	require.NotNil(t, first.Item.Catalog)
	assert.Equal(t, "Yageo", first.Item.Catalog.ManufacturerName)
	assert.Len(t, first.Item.Catalog.SimilarParts, 2)
	assert.Equal(t, 99, first.Item.Quantity, "explicit quantity column is kept")
	assert.Contains(t, first.Item.OriginalRowText, `"Part Number": "RC0402JR-071RL"`)

	second := job.Results[1]
	require.NotNil(t, second.Item)
	assert.Nil(t, second.Item.Catalog)
	assert.Equal(t, 1, second.Item.Quantity, "empty quantity falls back to designator count")

	third := job.Results[2]
	assert.Nil(t, third.Item)
	require.NotNil(t, third.Error)
	assert.Equal(t, "Failed to process row 3", third.Error.Error)
	assert.Contains(t, third.Error.Details, "invalid output")
	assert.Equal(t, 3, third.Error.Row.Position)

	assert.Equal(t, model.BatchSummary{Total: 3, Parsed: 2, RowErrors: 1, Enriched: 1}, job.Summary())

	stored, err := h.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.Results, 3)
}

func TestRun_MappingFailureIsSetupError(t *testing.T) {
	h := newHarness()
	h.mapper.err = errors.New("capability unavailable")

	job, err := h.orch.Run(context.Background(), "job-1", sampleRows())
	require.Error(t, err)
	assert.Nil(t, job)
	assert.Zero(t, h.parser.calls.Load())

	_, err = h.orch.Run(context.Background(), "job-2", nil)
	assert.Error(t, err)
}

func TestRunBatch_PreservesOrder(t *testing.T) {
	h := newHarness()
	var rows []model.RawRow
	for i := 1; i <= 50; i++ {
		rows = append(rows, model.NewRawRow(i, header, []any{"", "R1", 1.0, "x"}))
	}

	job, err := h.orch.RunBatch(context.Background(), "", rows, mapping())
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	require.Len(t, job.Results, 50)
	for i, r := range job.Results {
		assert.Equal(t, i+1, r.Position)
	}
	assert.Zero(t, h.dir.calls, "rows without a part number are not looked up")
}

func TestRunBatch_ReplacesJobWithSameID(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.orch.RunBatch(ctx, "job-1", sampleRows(), mapping())
	require.NoError(t, err)
	calls := h.dir.calls
	_, err = h.orch.RunBatch(ctx, "job-1", sampleRows()[:1], mapping())
	require.NoError(t, err)

	job, err := h.jobs.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Len(t, job.Results, 1)
	assert.Equal(t, calls, h.dir.calls, "second run is served from cache")
}

func TestRunBatch_StoreFailureStillReturnsResults(t *testing.T) {
	h := newHarness()
	h.jobs.err = errors.New("database is locked")

	job, err := h.orch.RunBatch(context.Background(), "job-1", sampleRows(), mapping())
	require.Error(t, err)
	require.NotNil(t, job)
	assert.Len(t, job.Results, 3)
}

type panickyParser struct{}

func (panickyParser) ParseRow(_ context.Context, row model.RawRow, _ model.ColumnMapping) (*model.ParsedItem, error) {
	if row.Position == 2 {
		panic("boom")
	}
	return &model.ParsedItem{Designators: []string{"C1"}}, nil
}

func TestRunBatch_PanicIsolatedToRow(t *testing.T) {
	worker := NewWorker(panickyParser{}, catalog.NewClient(&fakeDirectory{}, nil))
	orch := NewOrchestrator(&staticMapper{}, worker, newMemJobs(), Config{})

	job, err := orch.RunBatch(context.Background(), "job-1", sampleRows(), mapping())
	require.NoError(t, err)
	assert.False(t, job.Results[0].Failed())
	require.True(t, job.Results[1].Failed())
	assert.Equal(t, "panic: boom", job.Results[1].Error.Details)
	assert.False(t, job.Results[2].Failed())
}

func TestWorker_QuantityLaw(t *testing.T) {
	w := NewWorker(&rowParser{}, catalog.NewClient(&fakeDirectory{}, nil))
	noQty := mapping()
	noQty.Quantity = nil

	res := w.Enrich(context.Background(), model.NewRawRow(1, header, []any{"", "R1,R2,R3", 5.0, "x"}), noQty, nil)
	require.NotNil(t, res.Item)
	assert.Equal(t, 3, res.Item.Quantity)
}

// slowDirectory records the peak number of concurrent calls.
type slowDirectory struct {
	inflight atomic.Int32
	peak     atomic.Int32
}

func (d *slowDirectory) SearchMPN(_ context.Context, _ string) ([]nexar.Part, error) {
	n := d.inflight.Add(1)
	defer d.inflight.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return nil, nil
}

func TestRunBatch_SharedLookupLimit(t *testing.T) {
	dir := &slowDirectory{}
	worker := NewWorker(&rowParser{}, catalog.NewClient(dir, nil))
	orch := NewOrchestrator(&staticMapper{}, worker, newMemJobs(), Config{MaxConcurrentLookups: 2})

	var rows []model.RawRow
	for i := 1; i <= 20; i++ {
		rows = append(rows, model.NewRawRow(i, header, []any{fmt.Sprintf("MPN-%d", i), "R1", 1.0, "x"}))
	}

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = orch.RunBatch(context.Background(), id, rows, mapping())
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, dir.peak.Load(), int32(2))
}

type mockJudge struct {
	mock.Mock
}

func (m *mockJudge) Judge(ctx context.Context, a model.Assumptions, original, candidate model.PartSummary) (model.EvaluationVerdict, error) {
	args := m.Called(ctx, a, original, candidate)
	return args.Get(0).(model.EvaluationVerdict), args.Error(1)
}

func (m *mockJudge) JudgePart(ctx context.Context, a model.Assumptions, part model.PartSummary) (model.EvaluationVerdict, error) {
	args := m.Called(ctx, a, part)
	return args.Get(0).(model.EvaluationVerdict), args.Error(1)
}

func (m *mockJudge) Recommend(ctx context.Context, a model.Assumptions, original model.PartSummary, candidates []model.PartSummary) (string, error) {
	args := m.Called(ctx, a, original, candidates)
	return args.String(0), args.Error(1)
}

func enrichedJobs(t *testing.T) *memJobs {
	t.Helper()
	h := newHarness()
	_, err := h.orch.RunBatch(context.Background(), "job-1", sampleRows(), mapping())
	require.NoError(t, err)
	return h.jobs
}

func TestEvaluate_NotFoundReasons(t *testing.T) {
	judge := &mockJudge{}
	ev := NewEvaluator(enrichedJobs(t), judge)
	ctx := context.Background()
	a := model.Assumptions{"industry": "automotive"}

	tests := []struct {
		name      string
		job, mpn  string
		candidate string
		want      string
	}{
		{"unknown job", "nope", "RC0402JR-071RL", "ERJ-2GEJ1R0X", "job"},
		{"unknown original", "job-1", "XYZ", "ERJ-2GEJ1R0X", "original"},
		{"unknown alternative", "job-1", "RC0402JR-071RL", "XYZ", "alternative"},
		{"original without catalog", "job-1", "UNKNOWN-123", "ERJ-2GEJ1R0X", "alternative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ev.Evaluate(ctx, tt.job, tt.mpn, tt.candidate, a)
			assert.False(t, v.IsValid)
			assert.Contains(t, v.Reasoning, tt.want)
			assert.Equal(t, tt.mpn, v.OriginalMPN)
		})
	}
	judge.AssertNotCalled(t, "Judge", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEvaluate_JudgesCandidate(t *testing.T) {
	judge := &mockJudge{}
	a := model.Assumptions{"industry": "automotive"}
	judge.On("Judge", mock.Anything, a,
		mock.MatchedBy(func(s model.PartSummary) bool { return s.MPN == "RC0402JR-071RL" && s.BestOffer != nil }),
		mock.MatchedBy(func(s model.PartSummary) bool { return s.MPN == "ERJ-2GEJ1R0X" }),
	).Return(model.EvaluationVerdict{IsValid: true, Reasoning: "AEC-Q200 qualified"}, nil)

	v := NewEvaluator(enrichedJobs(t), judge).Evaluate(context.Background(), "job-1", "rc0402jr-071rl", "ERJ-2GEJ1R0X", a)
	assert.True(t, v.IsValid)
	assert.Equal(t, "RC0402JR-071RL", v.OriginalMPN)
	assert.Equal(t, "ERJ-2GEJ1R0X", v.CandidateMPN)
	judge.AssertExpectations(t)
}

func TestEvaluate_JudgeFailureIsInternalError(t *testing.T) {
	judge := &mockJudge{}
	judge.On("Judge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(model.EvaluationVerdict{}, errors.New("inference: refused"))

	v := NewEvaluator(enrichedJobs(t), judge).Evaluate(context.Background(), "job-1", "RC0402JR-071RL", "ERJ-2GEJ1R0X", nil)
	assert.False(t, v.IsValid)
	assert.Contains(t, v.Reasoning, "internal error")
}

func TestEvaluateAll(t *testing.T) {
	judge := &mockJudge{}
	judge.On("Judge", mock.Anything, mock.Anything, mock.Anything,
		mock.MatchedBy(func(s model.PartSummary) bool { return s.MPN == "ERJ-2GEJ1R0X" }),
	).Return(model.EvaluationVerdict{IsValid: true, Reasoning: "ok"}, nil)
	judge.On("Judge", mock.Anything, mock.Anything, mock.Anything,
		mock.MatchedBy(func(s model.PartSummary) bool { return s.MPN == "CRCW04021R00JNED" }),
	).Return(model.EvaluationVerdict{IsValid: false, Reasoning: "too expensive"}, nil)

	ev := NewEvaluator(enrichedJobs(t), judge)
	ctx := context.Background()

	verdicts := ev.EvaluateAll(ctx, "job-1", "RC0402JR-071RL", nil)
	require.Len(t, verdicts, 2)
	assert.Equal(t, "ERJ-2GEJ1R0X", verdicts[0].CandidateMPN)
	assert.True(t, verdicts[0].IsValid)
	assert.Equal(t, "CRCW04021R00JNED", verdicts[1].CandidateMPN)
	assert.False(t, verdicts[1].IsValid)

	assert.Empty(t, ev.EvaluateAll(ctx, "job-1", "UNKNOWN-123", nil))

	missing := ev.EvaluateAll(ctx, "nope", "RC0402JR-071RL", nil)
	require.Len(t, missing, 1)
	assert.Contains(t, missing[0].Reasoning, "job")
}

func TestEvaluatePart(t *testing.T) {
	judge := &mockJudge{}
	judge.On("JudgePart", mock.Anything, mock.Anything,
		mock.MatchedBy(func(s model.PartSummary) bool { return s.MPN == "UNKNOWN-123" }),
	).Return(model.EvaluationVerdict{IsValid: true, Reasoning: "generic resistor"}, nil)

	ev := NewEvaluator(enrichedJobs(t), judge)
	v := ev.EvaluatePart(context.Background(), "job-1", "UNKNOWN-123", nil)
	assert.True(t, v.IsValid)
	assert.Equal(t, "UNKNOWN-123", v.OriginalMPN)
	assert.Empty(t, v.CandidateMPN)

	v = ev.EvaluatePart(context.Background(), "job-1", "XYZ", nil)
	assert.False(t, v.IsValid)
	assert.Contains(t, v.Reasoning, "original")
}

func TestEvaluate_StoreFailureIsInternalError(t *testing.T) {
	jobs := newMemJobs()
	jobs.err = errors.New("connection refused")
	v := NewEvaluator(jobs, &mockJudge{}).Evaluate(context.Background(), "job-1", "A", "B", nil)
	assert.False(t, v.IsValid)
	assert.Contains(t, v.Reasoning, "internal error")
}

func TestRecommend(t *testing.T) {
	judge := &mockJudge{}
	judge.On("Recommend", mock.Anything, mock.Anything,
		mock.MatchedBy(func(s model.PartSummary) bool { return s.MPN == "RC0402JR-071RL" }),
		mock.MatchedBy(func(c []model.PartSummary) bool { return len(c) == 2 }),
	).Return("## Recommendation\nUse ERJ-2GEJ1R0X.", nil)

	ev := NewEvaluator(enrichedJobs(t), judge)
	report, err := ev.Recommend(context.Background(), "job-1", "RC0402JR-071RL", nil)
	require.NoError(t, err)
	assert.Contains(t, report, "ERJ-2GEJ1R0X")

	_, err = ev.Recommend(context.Background(), "nope", "RC0402JR-071RL", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSummarizeItem(t *testing.T) {
	item := &model.ParsedItem{
		ManufacturerPartNumber: strPtr("X1"),
		Parameters:             model.Parameters{ElectricalValue: strPtr("10k"), Tolerance: strPtr("")},
	}
	s := SummarizeItem(item)
	assert.Equal(t, "X1", s.MPN)
	assert.Equal(t, []model.Spec{{Name: "Value", Value: "10k"}}, s.KeySpecs)

	entry := &model.CatalogEntry{
		MPN:     "Y1",
		Specs:   []model.Spec{{Name: "A", Value: ""}, {Name: "B", Value: "2"}},
		Sellers: []model.Seller{{Name: "Mouser"}, {Name: "Mouser"}, {Name: "Arrow"}},
	}
	s = SummarizeEntry(entry)
	assert.Equal(t, []model.Spec{{Name: "B", Value: "2"}}, s.KeySpecs)
	assert.Equal(t, []string{"Mouser", "Arrow"}, s.SellerNames)
	assert.Nil(t, s.BestOffer)
}
