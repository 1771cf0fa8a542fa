package analyzer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"camera-analyze-service/llm"
	"camera-analyze-service/metadata"
	"camera-analyze-service/models"
	"camera-analyze-service/report"
	"camera-analyze-service/storage"
	"camera-analyze-service/stubllm"
)

type memStore struct {
	names []string
	err   error
}

func (m *memStore) List(ctx context.Context) ([]string, error) {
	return m.names, m.err
}

func (m *memStore) Resolve(ctx context.Context, name string) (llm.Image, error) {
	return llm.Image{URL: "mem://" + name}, nil
}

var _ storage.Store = (*memStore)(nil)

func imageNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("Junction_%d_10_80_12_%d_20250114_093045.jpg", i, i%200)
	}
	return names
}

func newAnalyzer(client *stubllm.Client, store storage.Store, workers int) *Analyzer {
	return New(client, store, metadata.NewTable(), report.NewComposer(client), workers)
}

func TestRunAllMatch(t *testing.T) {
	stub := stubllm.NewClient()
	stub.MatchMode = stubllm.MatchAll
	a := newAnalyzer(stub, &memStore{names: imageNames(20)}, 5)

	run, err := a.Run(context.Background(), "find lorries")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.TotalImages != 20 {
		t.Errorf("total = %d, want 20", run.TotalImages)
	}
	if run.MatchesFound != 20 {
		t.Errorf("matches = %d, want 20", run.MatchesFound)
	}
	if len(run.DetailedResults) != 20 {
		t.Errorf("results = %d, want 20", len(run.DetailedResults))
	}
	if run.FinalAnswer == "" {
		t.Error("expected a final answer")
	}
}

func TestRunNoMatch(t *testing.T) {
	stub := stubllm.NewClient()
	stub.MatchMode = stubllm.MatchNone
	a := newAnalyzer(stub, &memStore{names: imageNames(8)}, 3)

	run, err := a.Run(context.Background(), "find elephants")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.MatchesFound != 0 {
		t.Errorf("matches = %d, want 0", run.MatchesFound)
	}
	if run.TotalImages != 8 {
		t.Errorf("total = %d, want 8", run.TotalImages)
	}
}

func TestRunSingleWorkerMatchesPool(t *testing.T) {
	stub := stubllm.NewClient()
	names := imageNames(12)

	serial := newAnalyzer(stub, &memStore{names: names}, 1)
	pooled := newAnalyzer(stub, &memStore{names: names}, 6)

	wide := newAnalyzer(stub, &memStore{names: names}, 50)

	a, err := serial.Run(context.Background(), "find lorries")
	if err != nil {
		t.Fatalf("serial run: %v", err)
	}
	b, err := pooled.Run(context.Background(), "find lorries")
	if err != nil {
		t.Fatalf("pooled run: %v", err)
	}
	c, err := wide.Run(context.Background(), "find lorries")
	if err != nil {
		t.Fatalf("wide run: %v", err)
	}
	if a.MatchesFound != b.MatchesFound || a.Stats.TotalCount != b.Stats.TotalCount {
		t.Errorf("pool size changed outcome: %+v vs %+v", a.Stats, b.Stats)
	}
	if c.TotalImages != len(names) || c.MatchesFound != a.MatchesFound {
		t.Errorf("oversized pool changed outcome: %+v vs %+v", c.Stats, a.Stats)
	}
}

func TestRunNoImages(t *testing.T) {
	a := newAnalyzer(stubllm.NewClient(), &memStore{}, 5)
	if _, err := a.Run(context.Background(), "anything"); !errors.Is(err, ErrNoItems) {
		t.Errorf("err = %v, want ErrNoItems", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := newAnalyzer(stubllm.NewClient(), &memStore{names: imageNames(4)}, 2)
	run, err := a.Run(ctx, "find lorries")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range run.DetailedResults {
		if r.Status != models.StatusError {
			t.Errorf("result %s status = %s, want error", r.ImageName, r.Status)
		}
	}
}

func TestStreamEventOrder(t *testing.T) {
	stub := stubllm.NewClient()
	stub.MatchMode = stubllm.MatchAll
	a := newAnalyzer(stub, &memStore{names: imageNames(10)}, 4)

	var events []models.Event
	for ev := range a.Stream(context.Background(), "find lorries") {
		events = append(events, ev)
	}
	if len(events) == 0 {
		t.Fatal("no events received")
	}

	if events[0].Type != models.EventStart {
		t.Errorf("first event = %s, want %s", events[0].Type, models.EventStart)
	}
	last := events[len(events)-1]
	if last.Type != models.EventComplete {
		t.Errorf("last event = %s, want %s", last.Type, models.EventComplete)
	}

	progress, matches, completes := 0, 0, 0
	for _, ev := range events {
		switch ev.Type {
		case models.EventProgress:
			progress++
		case models.EventMatch:
			matches++
		case models.EventComplete:
			completes++
		case models.EventError:
			t.Errorf("unexpected error event: %v", ev.Data)
		}
	}
	if progress != 10 {
		t.Errorf("progress events = %d, want 10", progress)
	}
	if matches != 10 {
		t.Errorf("match events = %d, want 10", matches)
	}
	if completes != 1 {
		t.Errorf("complete events = %d, want 1", completes)
	}

	run, ok := last.Data.(*models.RunResult)
	if !ok {
		t.Fatalf("complete payload is %T", last.Data)
	}
	if run.MatchesFound != 10 {
		t.Errorf("run matches = %d, want 10", run.MatchesFound)
	}
}

func TestStreamMatchFollowsProgress(t *testing.T) {
	stub := stubllm.NewClient()
	stub.MatchMode = stubllm.MatchAll
	a := newAnalyzer(stub, &memStore{names: imageNames(6)}, 3)

	prev := models.Event{}
	for ev := range a.Stream(context.Background(), "find lorries") {
		if ev.Type == models.EventMatch && prev.Type != models.EventLog {
			t.Errorf("match event did not follow its item's log event, previous was %s", prev.Type)
		}
		prev = ev
	}
}

func TestStreamNoImages(t *testing.T) {
	a := newAnalyzer(stubllm.NewClient(), &memStore{}, 2)

	var events []models.Event
	for ev := range a.Stream(context.Background(), "anything") {
		events = append(events, ev)
	}
	last := events[len(events)-1]
	if last.Type != models.EventError {
		t.Errorf("last event = %s, want %s", last.Type, models.EventError)
	}
}

func TestStreamListError(t *testing.T) {
	a := newAnalyzer(stubllm.NewClient(), &memStore{err: errors.New("bucket unreachable")}, 2)

	sawError := false
	for ev := range a.Stream(context.Background(), "anything") {
		if ev.Type == models.EventError {
			sawError = true
		}
		if ev.Type == models.EventComplete {
			t.Error("complete event after list failure")
		}
	}
	if !sawError {
		t.Error("expected an error event")
	}
}

func TestInterpretQueryFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := newAnalyzer(stubllm.NewClient(), &memStore{}, 1)
	spec := a.InterpretQuery(ctx, "find broken signals")
	if spec.SearchObjective != "find broken signals" {
		t.Errorf("fallback objective = %q", spec.SearchObjective)
	}
	if spec.DetectionCriteria != "find broken signals" {
		t.Errorf("fallback criteria = %q", spec.DetectionCriteria)
	}
}
