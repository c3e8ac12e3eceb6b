// Package worker runs searches off the caller's goroutine. Each submitted
// request produces exactly one response.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/raid-frame-finder/internal/engine"
	"github.com/MJE43/raid-frame-finder/internal/scan"
)

var ErrClosed = errors.New("dispatcher closed")

// Request is one search: an encounter, a starting seed and what to look for.
type Request struct {
	Encounter engine.Encounter  `json:"encounter"`
	Seed      engine.Seed       `json:"seed"`
	Filter    *scan.FrameFilter `json:"filter,omitempty"`

	// Session groups the requests of one caller. A newer request supersedes
	// older ones only within the same non-empty session.
	Session string `json:"session,omitempty"`

	// Matcher overrides Filter when set
	Matcher scan.Matcher `json:"-"`
}

func (r Request) matcher() scan.Matcher {
	if r.Matcher != nil {
		return r.Matcher
	}
	if r.Filter != nil {
		return r.Filter
	}
	return scan.MatchAll{}
}

// Response is the single answer to a Request. Superseded is set when a newer
// request in the same session was submitted before this one finished; callers
// drop such responses.
type Response struct {
	ID         uuid.UUID     `json:"id"`
	Seq        uint64        `json:"seq"`
	Result     scan.Result   `json:"result"`
	Err        error         `json:"-"`
	Superseded bool          `json:"superseded"`
	Elapsed    time.Duration `json:"elapsed"`
}

// SearchFunc is the search the dispatcher runs; scan.Search in production
type SearchFunc func(ctx context.Context, enc engine.Encounter, seed engine.Seed, m scan.Matcher) (scan.Result, error)

type inflight struct {
	id      uuid.UUID
	session string
	cancel  context.CancelFunc
}

// session tracks the newest request of one caller and how many of its
// requests are still running
type session struct {
	latest  uint64
	running int
}

// Dispatcher runs each request on its own goroutine. Submitting a request
// cancels the older ones still running in the same session; requests in
// different sessions, or without one, never affect each other.
type Dispatcher struct {
	search SearchFunc
	logger *log.Logger

	mu       sync.Mutex
	seq      uint64
	running  map[uint64]inflight
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the event logger
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithSearch replaces the search function, mainly for tests
func WithSearch(fn SearchFunc) Option {
	return func(d *Dispatcher) { d.search = fn }
}

// NewDispatcher creates a dispatcher backed by scan.Search
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		search:  scan.Search,
		logger:  log.New(io.Discard, "", 0),
		running:  make(map[uint64]inflight),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit starts req and returns a channel that receives exactly one
// Response and is then closed. Cancelling ctx cancels only this request;
// older running requests in req.Session are cancelled and marked superseded.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (<-chan Response, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}

	d.seq++
	seq := d.seq
	id := uuid.New()
	runCtx, cancel := context.WithCancel(ctx)

	if req.Session != "" {
		for older, job := range d.running {
			if job.session != req.Session {
				continue
			}
			job.cancel()
			d.logger.Printf("search_superseded id=%s seq=%d by=%d session=%q", job.id, older, seq, req.Session)
		}
		sess := d.sessions[req.Session]
		if sess == nil {
			sess = &session{}
			d.sessions[req.Session] = sess
		}
		sess.latest = seq
		sess.running++
	}
	d.running[seq] = inflight{id: id, session: req.Session, cancel: cancel}
	d.wg.Add(1)
	d.mu.Unlock()

	out := make(chan Response, 1)
	d.logger.Printf("search_submitted id=%s seq=%d session=%q species=%d seed=%s", id, seq, req.Session, req.Encounter.Species, req.Seed)

	go func() {
		defer d.wg.Done()
		defer close(out)
		defer cancel()

		start := time.Now()
		res, err := d.run(runCtx, req)
		resp := Response{ID: id, Seq: seq, Result: res, Err: err, Elapsed: time.Since(start)}

		d.mu.Lock()
		delete(d.running, seq)
		resp.Superseded = d.finish(req.Session, seq)
		d.mu.Unlock()

		d.logger.Printf("search_finished id=%s seq=%d found=%t skips=%d evaluated=%d superseded=%t elapsed=%s err=%v",
			id, seq, res.Found, res.Skips, res.Evaluated, resp.Superseded, resp.Elapsed, err)
		out <- resp
	}()

	return out, nil
}

// run calls the search and turns a panic into an error, so the caller
// still gets its one response.
func (d *Dispatcher) run(ctx context.Context, req Request) (res scan.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search panicked: %v", r)
		}
	}()
	return d.search(ctx, req.Encounter, req.Seed, req.matcher())
}

// finish releases seq's hold on its session and reports whether a newer
// request in that session was submitted. d.mu must be held.
func (d *Dispatcher) finish(name string, seq uint64) bool {
	if name == "" {
		return false
	}
	sess := d.sessions[name]
	superseded := seq < sess.latest
	if sess.running--; sess.running == 0 {
		delete(d.sessions, name)
	}
	return superseded
}

// Running returns the number of searches still in flight
func (d *Dispatcher) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}

// Close cancels all in-flight searches, rejects new ones and waits for
// outstanding responses to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	for _, job := range d.running {
		job.cancel()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Do submits req and waits for its response
func (d *Dispatcher) Do(ctx context.Context, req Request) (Response, error) {
	ch, err := d.Submit(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return <-ch, nil
}
