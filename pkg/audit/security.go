// Package audit writes security-relevant query events to a dedicated logger
// so they can be shipped to a SIEM separately from application logs.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/logging"
)

// SecurityEventType categorizes events for filtering and alerting.
type SecurityEventType string

const (
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	EventMutationDenied      SecurityEventType = "mutation_denied"
	EventQueryExecution      SecurityEventType = "query_execution"
)

// SecurityEvent is the JSON document embedded in every audit log line.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	DBID      string            `json:"db_id"`
	Username  string            `json:"username,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// InjectionDetails describes a bound parameter that libinjection flagged.
type InjectionDetails struct {
	ParamName   string `json:"param_name"`
	ParamValue  string `json:"param_value"`
	Fingerprint string `json:"fingerprint"`
}

// MutationDetails describes a write that was refused by the mutation gate.
type MutationDetails struct {
	Query  string `json:"query"`
	Reason string `json:"reason"`
}

// ExecutionDetails summarizes a finished query.
type ExecutionDetails struct {
	Query      string `json:"query"`
	Mutation   bool   `json:"mutation"`
	Success    bool   `json:"success"`
	Rows       int    `json:"rows"`
	DurationMs int64  `json:"duration_ms"`
}

// SecurityAuditor logs security events on the "security_audit" logger.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates an auditor writing to logger.Named("security_audit").
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a flagged parameter at ERROR level.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, dbID string, details InjectionDetails) {
	event := a.event(ctx, EventSQLInjectionAttempt, dbID, details, "critical")

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", encode(event)),
		zap.String("db_id", dbID),
		zap.String("param_name", details.ParamName),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("username", event.Username),
		zap.String("severity", event.Severity),
	)
}

// LogMutationDenied records a refused write at WARN level.
func (a *SecurityAuditor) LogMutationDenied(ctx context.Context, dbID, query, reason string) {
	details := MutationDetails{Query: logging.SanitizeQuery(query), Reason: reason}
	event := a.event(ctx, EventMutationDenied, dbID, details, "warning")

	a.logger.Warn("Mutation denied",
		zap.String("event_json", encode(event)),
		zap.String("db_id", dbID),
		zap.String("reason", reason),
		zap.String("username", event.Username),
		zap.String("severity", event.Severity),
	)
}

// LogQueryExecution records a finished query. Writes log at WARN so they stand out.
func (a *SecurityAuditor) LogQueryExecution(ctx context.Context, dbID string, details ExecutionDetails) {
	details.Query = logging.SanitizeQuery(details.Query)
	severity := "info"
	if details.Mutation {
		severity = "warning"
	}
	event := a.event(ctx, EventQueryExecution, dbID, details, severity)

	fields := []zap.Field{
		zap.String("event_json", encode(event)),
		zap.String("db_id", dbID),
		zap.Bool("mutation", details.Mutation),
		zap.Bool("success", details.Success),
		zap.Int("rows", details.Rows),
		zap.String("username", event.Username),
		zap.String("severity", severity),
	}
	if details.Mutation {
		a.logger.Warn("Mutating query executed", fields...)
		return
	}
	a.logger.Info("Query executed", fields...)
}

func (a *SecurityAuditor) event(ctx context.Context, typ SecurityEventType, dbID string, details any, severity string) SecurityEvent {
	e := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: typ,
		DBID:      dbID,
		Details:   details,
		Severity:  severity,
	}
	if claims, ok := auth.GetClaims(ctx); ok {
		e.Username = claims.Subject
		e.UserID = claims.UserID
	}
	return e
}

func encode(e SecurityEvent) string {
	// marshaling known struct types cannot fail
	b, _ := json.Marshal(e)
	return string(b)
}
