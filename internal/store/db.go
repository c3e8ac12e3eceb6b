package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidKey   = errors.New("invalid setting key")
	ErrInvalidValue = errors.New("setting value is not valid JSON")
)

// Run kinds
const (
	KindSearch = "search"
	KindScan   = "scan"
)

// DB represents the database interface
type DB interface {
	Close() error
	Migrate(ctx context.Context) error
	Version(ctx context.Context) (int64, error)
	SaveRun(ctx context.Context, run *Run, hits []Hit) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, query RunsQuery) (*RunsList, error)
	GetRunHits(ctx context.Context, runID string, page, perPage int) (*HitsPage, error)
	DeleteRun(ctx context.Context, id string) error
	GetSetting(ctx context.Context, key string) (*Setting, error)
	PutSetting(ctx context.Context, key string, value json.RawMessage) (*Setting, error)
}

// RunsQuery represents query parameters for listing runs
type RunsQuery struct {
	Kind    string `json:"kind,omitempty"`
	Species uint16 `json:"species,omitempty"`
	Seed    string `json:"seed,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

// RunsList represents paginated runs response
type RunsList struct {
	Runs       []Run `json:"runs"`
	TotalCount int   `json:"totalCount"`
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	TotalPages int   `json:"totalPages"`
}

// HitsPage represents paginated hits with the skip distance to the previous hit
type HitsPage struct {
	Hits       []HitWithDelta `json:"hits"`
	TotalCount int            `json:"totalCount"`
	Page       int            `json:"page"`
	PerPage    int            `json:"perPage"`
	TotalPages int            `json:"totalPages"`
}

// Run is one recorded search or range scan. Seed is the starting seed in
// hex; for a search SkipEnd is the last frame evaluated.
type Run struct {
	ID             string          `json:"id" db:"id"`
	Kind           string          `json:"kind" db:"kind"`
	Species        uint16          `json:"species" db:"species"`
	AltForm        uint8           `json:"alt_form" db:"alt_form"`
	Encounter      json.RawMessage `json:"encounter" db:"encounter_json"`
	Seed           string          `json:"seed" db:"seed"`
	SkipStart      uint64          `json:"skip_start" db:"skip_start"`
	SkipEnd        uint64          `json:"skip_end" db:"skip_end"`
	Filter         json.RawMessage `json:"filter" db:"filter_json"`
	Script         string          `json:"script,omitempty" db:"script"`
	HitLimit       int             `json:"hit_limit" db:"hit_limit"`
	HitCount       int             `json:"hit_count" db:"hit_count"`
	TotalEvaluated uint64          `json:"total_evaluated" db:"total_evaluated"`
	TimedOut       bool            `json:"timed_out" db:"timed_out"`
	Truncated      bool            `json:"truncated" db:"truncated"`
	EngineVersion  string          `json:"engine_version" db:"engine_version"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Hit is one matching frame of a run
type Hit struct {
	ID    int64           `json:"id" db:"id"`
	RunID string          `json:"run_id" db:"run_id"`
	Skips uint64          `json:"skips" db:"skips"`
	Seed  string          `json:"seed" db:"seed"`
	Frame json.RawMessage `json:"frame" db:"frame_json"`
}

// HitWithDelta represents a hit with the skips since the previous hit
type HitWithDelta struct {
	Hit
	DeltaSkips *uint64 `json:"delta_skips,omitempty"`
}

// Setting is a JSON value stored under a key, e.g. the last used seed and filter
type Setting struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
