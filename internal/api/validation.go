package api

import (
	"fmt"
	"math"
	"strings"

	"github.com/MJE43/raid-frame-finder/internal/dens"
	"github.com/MJE43/raid-frame-finder/internal/engine"
	"github.com/MJE43/raid-frame-finder/internal/scan"
	"github.com/MJE43/raid-frame-finder/internal/scripting"
)

const (
	maxFrameCount = 10_000
	maxHitLimit   = 100_000
	maxTimeoutMs  = 300_000 // 5 minutes
	maxScriptLen  = 16 << 10
)

// resolveEncounter returns the explicit encounter or looks up the den entry
func (s *Server) resolveEncounter(t Target) (engine.Encounter, error) {
	switch {
	case t.Encounter != nil && t.Den != nil:
		return engine.Encounter{}, fmt.Errorf("%w: give either encounter or den, not both", errValidation)
	case t.Encounter != nil:
		if err := t.Encounter.Validate(); err != nil {
			return engine.Encounter{}, err
		}
		return *t.Encounter, nil
	case t.Den != nil:
		title, err := dens.ParseTitle(t.Den.Title)
		if err != nil {
			return engine.Encounter{}, err
		}
		badge := dens.BadgeAll
		if t.Den.Badge != "" {
			if badge, err = dens.ParseBadgeLevel(t.Den.Badge); err != nil {
				return engine.Encounter{}, err
			}
		}
		entry, err := s.dens.Entry(t.Den.Den, title, badge, t.Den.Index)
		if err != nil {
			return engine.Encounter{}, err
		}
		return s.dens.Encounter(entry)
	default:
		return engine.Encounter{}, fmt.Errorf("%w: encounter or den is required", errValidation)
	}
}

// buildMatcher admits the filter against the encounter and compiles the
// script. The returned script is nil when none was given.
func buildMatcher(enc engine.Encounter, filter *scan.FrameFilter, source string) (scan.Matcher, *scripting.Filter, error) {
	if err := scan.Admit(enc, filter); err != nil {
		return nil, nil, err
	}

	if strings.TrimSpace(source) == "" {
		if filter == nil {
			return scan.MatchAll{}, nil, nil
		}
		return filter, nil, nil
	}
	if len(source) > maxScriptLen {
		return nil, nil, fmt.Errorf("%w: script longer than %d bytes", errScript, maxScriptLen)
	}
	script, err := scripting.Compile(source)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errScript, err)
	}
	if filter == nil {
		return script, script, nil
	}
	return scan.AllOf{filter, script}, script, nil
}

// ValidateFramesRequest checks the listing bounds
func ValidateFramesRequest(req *FramesRequest) error {
	if req.Count <= 0 {
		return fmt.Errorf("%w: count must be positive", errValidation)
	}
	if req.Count > maxFrameCount {
		return fmt.Errorf("%w: count too large (max %d)", errValidation, maxFrameCount)
	}
	if req.Skip > math.MaxUint64-uint64(req.Count) {
		return fmt.Errorf("%w: skip %d leaves no room for %d frames", scan.ErrInvalidRange, req.Skip, req.Count)
	}
	return nil
}

// ValidateScanRequest checks limits the scanner itself does not enforce
func ValidateScanRequest(req *ScanRequest) error {
	if req.Limit < 0 {
		return fmt.Errorf("%w: limit must be >= 0", errValidation)
	}
	if req.Limit > maxHitLimit {
		return fmt.Errorf("%w: limit too large (max %d)", errValidation, maxHitLimit)
	}
	if req.TimeoutMs < 0 {
		return fmt.Errorf("%w: timeout_ms must be >= 0", errValidation)
	}
	if req.TimeoutMs > maxTimeoutMs {
		return fmt.Errorf("%w: timeout_ms too large (max %d ms)", errValidation, maxTimeoutMs)
	}
	return nil
}

// describe renders the filter half of a request for logs and run records
func describe(filter *scan.FrameFilter, script *scripting.Filter) string {
	text := "any"
	if filter != nil {
		text = filter.Describe()
	}
	if script != nil {
		text += "; script"
	}
	return text
}
