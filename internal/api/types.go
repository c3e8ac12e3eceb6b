package api

import (
	"github.com/MJE43/raid-frame-finder/internal/dens"
	"github.com/MJE43/raid-frame-finder/internal/engine"
	"github.com/MJE43/raid-frame-finder/internal/scan"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeInvalidSeed      = "invalid_seed"
	ErrTypeInvalidEncounter = "invalid_encounter"
	ErrTypeInvalidFilter    = "invalid_filter"
	ErrTypeUnsatisfiable    = "unsatisfiable_filter"
	ErrTypeInvalidRange     = "invalid_range"
	ErrTypeScript           = "script_error"
	ErrTypeValidation       = "validation_error"

	// Lookup errors
	ErrTypeDenNotFound = "den_not_found"
	ErrTypeNotFound    = "not_found"

	// System errors
	ErrTypeSuperseded         = "superseded"
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryLookup     ErrorCategory = "lookup"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidSeed, ErrTypeInvalidEncounter, ErrTypeInvalidFilter, ErrTypeUnsatisfiable,
		ErrTypeInvalidRange, ErrTypeScript, ErrTypeValidation:
		return CategoryValidation
	case ErrTypeDenNotFound, ErrTypeNotFound:
		return CategoryLookup
	case ErrTypeTimeout, ErrTypeSuperseded:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion    string `json:"engine_version"`
	GeneratorVersion string `json:"generator_version"`
	GitCommit        string `json:"git_commit,omitempty"`
	BuildTime        string `json:"build_time,omitempty"`
}

// DenRef picks an encounter out of the den table instead of spelling it out
type DenRef struct {
	Den   string `json:"den"`
	Title string `json:"title"`
	Badge string `json:"badge,omitempty"`
	Index int    `json:"index"`
}

// Target is the encounter half of every generation request: either an
// explicit encounter or a den entry.
type Target struct {
	Encounter *engine.Encounter `json:"encounter,omitempty"`
	Den       *DenRef           `json:"den,omitempty"`
}

// FramesRequest lists consecutive frames starting at Skip
type FramesRequest struct {
	Target
	Seed  string `json:"seed"`
	Skip  uint64 `json:"skip,omitempty"`
	Count int    `json:"count"`
}

// FramesResponse is the frame listing
type FramesResponse struct {
	Encounter     engine.Encounter `json:"encounter"`
	Frames        []engine.Frame   `json:"frames"`
	EngineVersion string           `json:"engine_version"`
	Echo          FramesRequest    `json:"echo"`
}

// SearchRequest looks for the first matching frame within the search ceiling.
// Filter and Script may be combined; both must match. Session, or the
// X-Client-ID header, names the caller: a newer search in the same session
// supersedes this one.
type SearchRequest struct {
	Target
	Seed    string            `json:"seed"`
	Filter  *scan.FrameFilter `json:"filter,omitempty"`
	Script  string            `json:"script,omitempty"`
	Session string            `json:"session,omitempty"`
}

// SearchResponse reports the first match, or Message when there is none
type SearchResponse struct {
	Found         bool          `json:"found"`
	Skips         uint64        `json:"skips"`
	Frame         *engine.Frame `json:"frame,omitempty"`
	Evaluated     uint64        `json:"evaluated"`
	Message       string        `json:"message,omitempty"`
	ScriptError   string        `json:"script_error,omitempty"`
	ScriptLogs    []string      `json:"script_logs,omitempty"`
	RunID         string        `json:"run_id,omitempty"`
	ElapsedMs     int64         `json:"elapsed_ms"`
	EngineVersion string        `json:"engine_version"`
	Echo          SearchRequest `json:"echo"`
}

// ScanRequest collects every match within an inclusive skip range
type ScanRequest struct {
	Target
	Seed      string            `json:"seed"`
	SkipStart uint64            `json:"skip_start"`
	SkipEnd   uint64            `json:"skip_end"`
	Filter    *scan.FrameFilter `json:"filter,omitempty"`
	Script    string            `json:"script,omitempty"`
	Limit     int               `json:"limit,omitempty"`
	TimeoutMs int               `json:"timeout_ms,omitempty"`
}

// ScanResponse represents the complete scan response
type ScanResponse struct {
	Hits          []scan.Hit   `json:"hits"`
	Summary       scan.Summary `json:"summary"`
	RunID         string       `json:"run_id,omitempty"`
	EngineVersion string       `json:"engine_version"`
	Echo          ScanRequest  `json:"echo"`
}

// EntryView is a den entry as listed to clients
type EntryView struct {
	Index          int                `json:"index"`
	Label          string             `json:"label"`
	Species        uint16             `json:"species"`
	AltForm        uint8              `json:"alt_form"`
	MinFlawlessIVs uint8              `json:"min_flawless_ivs"`
	AbilityPool    engine.AbilityPool `json:"ability_pool"`
	GenderPool     engine.GenderPool  `json:"gender_pool"`
	IsGmax         bool               `json:"is_gmax"`
	MinStars       int                `json:"min_stars"`
	MaxStars       int                `json:"max_stars"`
}

// DenView is one den's visible entries for a title and badge level
type DenView struct {
	ID      string          `json:"id"`
	Title   dens.Title      `json:"title"`
	Badge   dens.BadgeLevel `json:"badge"`
	Entries []EntryView     `json:"entries"`
}

// DensResponse represents the den listing
type DensResponse struct {
	Dens          []DenView `json:"dens"`
	EngineVersion string    `json:"engine_version"`
}
