package scan

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MJE43/raid-frame-finder/internal/engine"
)

func TestScannerMatchesSequentialWalk(t *testing.T) {
	seed := engine.Seed(0x2b4610ec42f20b13)
	ff := (&FrameFilter{}).WithIV(engine.StatHP, AtMost, Decent).WithGender(engine.GenderFemale)

	var want []uint64
	for _, f := range engine.ListFrames(excadrill, seed, 50_000) {
		if ff.Matches(f) {
			want = append(want, f.Skips)
		}
	}

	for _, workers := range []int{1, 3, 8} {
		res, err := NewScannerWithWorkers(workers).Scan(context.Background(), ScanRequest{
			Encounter: excadrill,
			Seed:      seed,
			SkipStart: 0,
			SkipEnd:   49_999,
			Filter:    ff,
			Limit:     len(want),
		})
		if err != nil {
			t.Fatalf("workers=%d: Scan: %v", workers, err)
		}
		if len(res.Hits) != len(want) {
			t.Fatalf("workers=%d: got %d hits, want %d", workers, len(res.Hits), len(want))
		}
		for i, h := range res.Hits {
			if h.Skips != want[i] || h.Frame.Skips != want[i] {
				t.Fatalf("workers=%d: hit %d at %d, want %d", workers, i, h.Skips, want[i])
			}
		}
		if res.Summary.TotalEvaluated != 50_000 {
			t.Errorf("workers=%d: evaluated %d", workers, res.Summary.TotalEvaluated)
		}
		if res.Summary.Truncated || res.Summary.TimedOut {
			t.Errorf("workers=%d: summary %+v", workers, res.Summary)
		}
	}
}

func TestScannerLimitKeepsLowestSkips(t *testing.T) {
	res, err := NewScannerWithWorkers(4).Scan(context.Background(), ScanRequest{
		Encounter: excadrill,
		Seed:      0xbb810e6006a2a035,
		SkipStart: 100,
		SkipEnd:   40_099,
		Limit:     5,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(res.Hits) != 5 {
		t.Fatalf("got %d hits, want 5", len(res.Hits))
	}
	for i, h := range res.Hits {
		if h.Skips != uint64(100+i) {
			t.Errorf("hit %d at skip %d, want %d", i, h.Skips, 100+i)
		}
	}
	if !res.Summary.Truncated || res.Summary.HitsFound != 40_000 {
		t.Errorf("summary = %+v", res.Summary)
	}
	if !res.Summary.HitRate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("hit rate = %s, want 1", res.Summary.HitRate)
	}
}

func TestScannerHitRate(t *testing.T) {
	ff := (&FrameFilter{}).WithShiny(ShinySquare)
	res, err := NewScanner().Scan(context.Background(), ScanRequest{
		Encounter: excadrill,
		Seed:      0xbb810e6006a2a035,
		SkipEnd:   9,
		Filter:    ff,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Hits) != 1 || res.Hits[0].Skips != 6 {
		t.Fatalf("hits = %+v", res.Hits)
	}
	if want := decimal.RequireFromString("0.1"); !res.Summary.HitRate.Equal(want) {
		t.Errorf("hit rate = %s, want %s", res.Summary.HitRate, want)
	}
	if res.EngineVersion != EngineVersion {
		t.Errorf("engine version = %q", res.EngineVersion)
	}
}

func TestScannerValidation(t *testing.T) {
	bad := excadrill
	bad.MinFlawlessIVs = 9

	tests := []struct {
		name    string
		req     ScanRequest
		wantErr error
	}{
		{"reversed range", ScanRequest{Encounter: excadrill, SkipStart: 10, SkipEnd: 5}, ErrInvalidRange},
		{"range too large", ScanRequest{Encounter: excadrill, SkipEnd: MaxSearchFrames}, ErrInvalidRange},
		{"negative limit", ScanRequest{Encounter: excadrill, SkipEnd: 5, Limit: -1}, ErrInvalidRange},
		{"bad encounter", ScanRequest{Encounter: bad, SkipEnd: 5}, engine.ErrInvalidEncounter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScanner().Scan(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Scan() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestScannerCancelledReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewScannerWithWorkers(2).Scan(ctx, ScanRequest{
		Encounter: excadrill,
		SkipEnd:   MaxSearchFrames - 1,
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res.Summary.TimedOut {
		t.Error("expected TimedOut")
	}
	if res.Summary.TotalEvaluated >= MaxSearchFrames {
		t.Errorf("evaluated %d frames after cancellation", res.Summary.TotalEvaluated)
	}
}

type cloningMatcher struct {
	clones *int32
	fail   bool
}

func (c *cloningMatcher) Matches(engine.Frame) bool { return false }

func (c *cloningMatcher) Clone() (Matcher, error) {
	if c.fail {
		return nil, errors.New("no clone")
	}
	atomic.AddInt32(c.clones, 1)
	return &cloningMatcher{clones: c.clones}, nil
}

func TestScannerClonesMatcherPerWorker(t *testing.T) {
	var clones int32
	_, err := NewScannerWithWorkers(3).Scan(context.Background(), ScanRequest{
		Encounter: excadrill,
		SkipEnd:   100,
		Matcher:   &cloningMatcher{clones: &clones},
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if clones != 3 {
		t.Errorf("clones = %d, want 3", clones)
	}

	_, err = NewScanner().Scan(context.Background(), ScanRequest{
		Encounter: excadrill,
		SkipEnd:   100,
		Matcher:   &cloningMatcher{clones: &clones, fail: true},
	})
	if err == nil {
		t.Error("expected clone failure")
	}
}

func TestGenerateJobsCoversRange(t *testing.T) {
	jobs := make(chan ScanJob, 16)
	go generateJobs(context.Background(), jobs, 5, 3*scanBatchSize+7)

	next := uint64(5)
	for job := range jobs {
		if job.SkipStart != next {
			t.Fatalf("job starts at %d, want %d", job.SkipStart, next)
		}
		if job.SkipEnd < job.SkipStart || job.SkipEnd-job.SkipStart >= scanBatchSize {
			t.Fatalf("bad job %+v", job)
		}
		next = job.SkipEnd + 1
	}
	if next != 3*scanBatchSize+8 {
		t.Errorf("jobs ended at %d", next-1)
	}
}
