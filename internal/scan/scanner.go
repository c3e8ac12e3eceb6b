package scan

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/raid-frame-finder/internal/engine"
)

const (
	// DefaultHitLimit caps the hits returned when the request sets no limit
	DefaultHitLimit = 1000

	// scanBatchSize is the number of frames per worker job
	scanBatchSize = 8192
)

// Cloner is implemented by matchers that are not safe for concurrent use.
// The scanner gives each worker its own clone.
type Cloner interface {
	Clone() (Matcher, error)
}

// ScanRequest describes a scan over an inclusive skip range
type ScanRequest struct {
	Encounter engine.Encounter `json:"encounter"`
	Seed      engine.Seed      `json:"seed"`
	SkipStart uint64           `json:"skip_start"`
	SkipEnd   uint64           `json:"skip_end"`
	Filter    *FrameFilter     `json:"filter,omitempty"`
	Limit     int              `json:"limit,omitempty"`
	TimeoutMs int              `json:"timeout_ms,omitempty"`

	// Matcher overrides Filter when set
	Matcher Matcher `json:"-"`
}

// Hit is a matching frame
type Hit struct {
	Skips uint64       `json:"skips"`
	Frame engine.Frame `json:"frame"`
}

// Summary contains aggregate statistics
type Summary struct {
	TotalEvaluated uint64          `json:"total_evaluated"`
	HitsFound      uint64          `json:"hits_found"`
	HitRate        decimal.Decimal `json:"hit_rate"`
	Truncated      bool            `json:"truncated,omitempty"`
	TimedOut       bool            `json:"timed_out,omitempty"`
}

// ScanResult contains the complete scan results
type ScanResult struct {
	Hits          []Hit       `json:"hits"`
	Summary       Summary     `json:"summary"`
	EngineVersion string      `json:"engine_version"`
	Echo          ScanRequest `json:"echo"`
}

// ScanJob is a batch of consecutive skips
type ScanJob struct {
	SkipStart uint64
	SkipEnd   uint64
}

// Scanner fans a skip range out over a pool of workers
type Scanner struct {
	workerCount int
}

// NewScanner creates a scanner with one worker per usable CPU
func NewScanner() *Scanner {
	return &Scanner{workerCount: runtime.GOMAXPROCS(0)}
}

// NewScannerWithWorkers creates a scanner with a fixed worker count
func NewScannerWithWorkers(n int) *Scanner {
	if n < 1 {
		n = 1
	}
	return &Scanner{workerCount: n}
}

// Validate checks the request before any work starts
func (req *ScanRequest) Validate() error {
	if err := req.Encounter.Validate(); err != nil {
		return err
	}
	if req.SkipEnd < req.SkipStart {
		return fmt.Errorf("%w: end %d before start %d", ErrInvalidRange, req.SkipEnd, req.SkipStart)
	}
	if req.SkipEnd-req.SkipStart >= MaxSearchFrames {
		return fmt.Errorf("%w: range exceeds %d frames", ErrInvalidRange, MaxSearchFrames)
	}
	if req.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidRange)
	}
	return nil
}

// Scan evaluates every frame in the range and returns the lowest-skip hits.
// A timeout or cancelled ctx yields the partial result with TimedOut set.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	matcher := req.Matcher
	if matcher == nil {
		if req.Filter != nil {
			matcher = req.Filter
		} else {
			matcher = MatchAll{}
		}
	}

	limit := req.Limit
	if limit == 0 {
		limit = DefaultHitLimit
	}

	// Clone up front so a failing clone aborts before any goroutine starts.
	matchers := make([]Matcher, s.workerCount)
	for i := range matchers {
		m, err := workerMatcher(matcher)
		if err != nil {
			return nil, err
		}
		matchers[i] = m
	}

	jobs := make(chan ScanJob, s.workerCount*2)
	hits := make(chan Hit, 1024)

	var evaluated, matched uint64
	var wg sync.WaitGroup

	for i := 0; i < s.workerCount; i++ {
		w := &scanWorker{
			jobs:      jobs,
			hits:      hits,
			enc:       req.Encounter,
			seed:      req.Seed,
			matcher:   matchers[i],
			evaluated: &evaluated,
			matched:   &matched,
		}
		wg.Add(1)
		go w.run(ctx, &wg)
	}

	go generateJobs(ctx, jobs, req.SkipStart, req.SkipEnd)

	go func() {
		wg.Wait()
		close(hits)
	}()

	collector := &resultCollector{limit: limit}
	for hit := range hits {
		collector.add(hit)
	}

	result := &ScanResult{
		Hits:          collector.sorted(),
		EngineVersion: EngineVersion,
		Echo:          req,
	}
	result.Summary = summarize(atomic.LoadUint64(&evaluated), atomic.LoadUint64(&matched), ctx.Err() != nil)
	result.Summary.Truncated = result.Summary.HitsFound > uint64(len(result.Hits))

	return result, nil
}

// EngineVersion identifies the generator implementation in scan results
const EngineVersion = "xoroshiro-raid-1"

func workerMatcher(m Matcher) (Matcher, error) {
	c, ok := m.(Cloner)
	if !ok {
		return m, nil
	}
	clone, err := c.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone matcher: %w", err)
	}
	return clone, nil
}

type scanWorker struct {
	jobs      <-chan ScanJob
	hits      chan<- Hit
	enc       engine.Encounter
	seed      engine.Seed
	matcher   Matcher
	evaluated *uint64
	matched   *uint64
}

func (w *scanWorker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			if !w.process(ctx, job) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// process evaluates one batch; it returns false once ctx is done
func (w *scanWorker) process(ctx context.Context, job ScanJob) bool {
	g := engine.NewFrameGeneratorAt(w.enc, w.seed, job.SkipStart)

	var n uint64
	defer func() { atomic.AddUint64(w.evaluated, n) }()

	for span := job.SkipEnd - job.SkipStart; n <= span; {
		f := g.Next()
		n++
		if !w.matcher.Matches(f) {
			continue
		}
		atomic.AddUint64(w.matched, 1)
		select {
		case w.hits <- Hit{Skips: f.Skips, Frame: f}:
		case <-ctx.Done():
			return false
		}
	}
	return ctx.Err() == nil
}

func generateJobs(ctx context.Context, jobs chan<- ScanJob, start, end uint64) {
	defer close(jobs)

	for current := start; ; {
		batchEnd := current + scanBatchSize - 1
		if batchEnd > end || batchEnd < current {
			batchEnd = end
		}

		select {
		case jobs <- ScanJob{SkipStart: current, SkipEnd: batchEnd}:
		case <-ctx.Done():
			return
		}
		if batchEnd == end {
			return
		}
		current = batchEnd + 1
	}
}

// resultCollector keeps the lowest-skip hits. Workers finish batches out of
// order, so hits are trimmed by skip rather than by arrival.
type resultCollector struct {
	limit int
	hits  []Hit
}

func (rc *resultCollector) add(h Hit) {
	rc.hits = append(rc.hits, h)
	if len(rc.hits) >= 2*rc.limit {
		rc.trim()
	}
}

func (rc *resultCollector) trim() {
	sort.Slice(rc.hits, func(i, j int) bool { return rc.hits[i].Skips < rc.hits[j].Skips })
	if len(rc.hits) > rc.limit {
		rc.hits = rc.hits[:rc.limit]
	}
}

func (rc *resultCollector) sorted() []Hit {
	rc.trim()
	if rc.hits == nil {
		return []Hit{}
	}
	return rc.hits
}

func summarize(evaluated, matched uint64, timedOut bool) Summary {
	summary := Summary{
		TotalEvaluated: evaluated,
		HitsFound:      matched,
		HitRate:        decimal.Zero,
		TimedOut:       timedOut,
	}
	if evaluated > 0 {
		summary.HitRate = decimal.NewFromInt(int64(matched)).
			DivRound(decimal.NewFromInt(int64(evaluated)), 8)
	}
	return summary
}
