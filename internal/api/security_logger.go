package api

import (
	"io"
	"log"
	"time"

	"github.com/MJE43/raid-frame-finder/internal/engine"
)

// AuditLogger records operations and security-relevant events. Seeds are
// not secrets in this domain, so they are logged in hex for replay.
type AuditLogger struct {
	logger *log.Logger
}

// NewAuditLogger creates an audit logger writing to out
func NewAuditLogger(out io.Writer) *AuditLogger {
	return &AuditLogger{
		logger: log.New(out, "[AUDIT] ", log.LstdFlags|log.LUTC),
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// LogSearchOperation logs a completed first-match search
func (al *AuditLogger) LogSearchOperation(
	requestID string,
	enc engine.Encounter,
	seed engine.Seed,
	filter string,
	scripted bool,
	found bool,
	skips uint64,
	evaluated uint64,
	duration time.Duration,
) {
	al.logger.Printf(
		"search_operation request_id=%s species=%d form=%d seed=%s filter=%q scripted=%t found=%t skips=%d evaluated=%d duration=%v engine_version=%s timestamp=%s",
		requestID,
		enc.Species,
		enc.AltForm,
		seed,
		filter,
		scripted,
		found,
		skips,
		evaluated,
		duration,
		EngineVersion,
		timestamp(),
	)
}

// LogScanOperation logs a completed range scan
func (al *AuditLogger) LogScanOperation(
	requestID string,
	enc engine.Encounter,
	seed engine.Seed,
	skipStart, skipEnd uint64,
	filter string,
	hits uint64,
	evaluated uint64,
	timedOut bool,
	duration time.Duration,
) {
	al.logger.Printf(
		"scan_operation request_id=%s species=%d form=%d seed=%s skip_range=%d-%d filter=%q hits=%d evaluated=%d timed_out=%t duration=%v engine_version=%s timestamp=%s",
		requestID,
		enc.Species,
		enc.AltForm,
		seed,
		skipStart,
		skipEnd,
		filter,
		hits,
		evaluated,
		timedOut,
		duration,
		EngineVersion,
		timestamp(),
	)
}

// LogSecurityEvent logs rejected input and other suspicious activity
func (al *AuditLogger) LogSecurityEvent(
	requestID string,
	eventType string,
	description string,
	context map[string]interface{},
	remoteAddr string,
) {
	al.logger.Printf(
		"security_event request_id=%s type=%s description=%q context=%+v remote_addr=%s engine_version=%s timestamp=%s",
		requestID,
		eventType,
		description,
		context,
		remoteAddr,
		EngineVersion,
		timestamp(),
	)
}

// LogAuditEvent logs audit events for debugging
func (al *AuditLogger) LogAuditEvent(
	requestID string,
	action string,
	resource string,
	outcome string,
	details map[string]interface{},
) {
	al.logger.Printf(
		"audit_event request_id=%s action=%s resource=%s outcome=%s details=%+v engine_version=%s timestamp=%s",
		requestID,
		action,
		resource,
		outcome,
		details,
		EngineVersion,
		timestamp(),
	)
}

// LogSystemStartup logs system startup information
func (al *AuditLogger) LogSystemStartup(addr string, config map[string]interface{}) {
	al.logger.Printf(
		"system_startup addr=%s config=%+v engine_version=%s git_commit=%s build_time=%s timestamp=%s",
		addr,
		config,
		EngineVersion,
		GitCommit,
		BuildTime,
		timestamp(),
	)
}

// LogSystemShutdown logs system shutdown information
func (al *AuditLogger) LogSystemShutdown(reason string, uptime time.Duration) {
	al.logger.Printf(
		"system_shutdown reason=%s uptime=%v engine_version=%s timestamp=%s",
		reason,
		uptime,
		EngineVersion,
		timestamp(),
	)
}
