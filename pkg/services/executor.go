package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/audit"
	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/logging"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/observability"
	sqlpkg "github.com/ekaya-inc/querygate/pkg/sql"
)

// ExecuteRequest is a confirmed query for one configured database.
type ExecuteRequest struct {
	DBID           string
	Query          string
	Params         map[string]any
	NaturalQuery   string
	AllowMutations bool
}

// ExecutorConfig bounds a single execution.
type ExecutorConfig struct {
	Timeout time.Duration
	MaxRows int
}

// Executor runs confirmed queries. Every failure past database lookup is
// returned as an error-shaped envelope so callers can persist it.
type Executor interface {
	// Execute returns ErrUnknownDatabase for an unconfigured db id and an
	// envelope in every other case.
	Execute(ctx context.Context, req *ExecuteRequest) (*models.ResultEnvelope, error)
}

type executor struct {
	catalog  SchemaCatalog
	audit    AuditService
	security *audit.SecurityAuditor
	cfg      ExecutorConfig
	logger   *zap.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(catalog SchemaCatalog, auditSvc AuditService, security *audit.SecurityAuditor, cfg ExecutorConfig, logger *zap.Logger) Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 1000
	}
	return &executor{
		catalog:  catalog,
		audit:    auditSvc,
		security: security,
		cfg:      cfg,
		logger:   logger.Named("executor"),
	}
}

var _ Executor = (*executor)(nil)

func (e *executor) Execute(ctx context.Context, req *ExecuteRequest) (*models.ResultEnvelope, error) {
	desc, err := e.catalog.Database(req.DBID)
	if err != nil {
		return nil, err
	}

	run := &execution{req: req, desc: desc, query: strings.TrimSpace(req.Query)}
	result := e.run(ctx, run)

	e.finish(ctx, run, result)
	return result, nil
}

// execution tracks one request through the pipeline for auditing.
type execution struct {
	req      *ExecuteRequest
	desc     models.DatabaseDescriptor
	query    string
	mutation bool
	denied   bool
	reached  bool
	elapsed  time.Duration
}

func (e *executor) run(ctx context.Context, x *execution) *models.ResultEnvelope {
	engine := x.desc.Engine
	if x.query == "" {
		return models.NewError("query is empty")
	}

	if isSQLEngine(engine) {
		normalized, err := sqlpkg.Normalize(x.query)
		if err != nil {
			return models.NewError(err.Error())
		}
		x.query = normalized
	}

	x.mutation = sqlpkg.IsMutation(engine, x.query)
	if x.mutation {
		if reason := mutationDenial(ctx, x.desc, x.req.AllowMutations); reason != "" {
			x.denied = true
			e.security.LogMutationDenied(ctx, x.desc.ID, x.query, reason)
			return models.NewErrorf("Mutation denied: %s.", reason)
		}
	}

	query, args := x.query, []any(nil)
	if isSQLEngine(engine) {
		if findings := sqlpkg.CheckParameters(x.req.Params); len(findings) > 0 {
			x.denied = true
			for _, f := range findings {
				e.security.LogInjectionAttempt(ctx, x.desc.ID, audit.InjectionDetails{
					ParamName:   f.ParamName,
					ParamValue:  fmt.Sprint(f.ParamValue),
					Fingerprint: f.Fingerprint,
				})
			}
			return models.NewErrorf("Potential SQL injection detected in parameter %q.", findings[0].ParamName)
		}

		bound, boundArgs, err := sqlpkg.BindNamed(x.query, x.req.Params, sqlpkg.PlaceholderFor(engine))
		if err != nil {
			return models.NewError(err.Error())
		}
		query, args = bound, boundArgs
	}

	adapter, _, err := e.catalog.Adapter(ctx, x.desc.ID)
	if err != nil {
		e.logger.Error("Failed to open datasource",
			zap.String("db_id", x.desc.ID),
			zap.String("error", logging.SanitizeError(err)))
		return models.NewErrorf("Failed to connect to %s: %s", x.desc.Name, logging.SanitizeError(err))
	}

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	x.reached = true
	started := time.Now()
	result, err := adapter.Execute(execCtx, query, args, e.cfg.MaxRows)
	x.elapsed = time.Since(started)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return models.NewErrorf("query timed out after %s", e.cfg.Timeout)
		}
		return models.NewError(logging.SanitizeError(err))
	}
	if result == nil {
		return models.NewAck(models.AckMessage, 0)
	}
	return result
}

// finish writes the audit row, the security event and metrics.
func (e *executor) finish(ctx context.Context, x *execution, result *models.ResultEnvelope) {
	errMsg, failed := result.ErrorMessage()

	e.audit.Record(ctx, &models.QueryAuditEntry{
		DBID:           x.desc.ID,
		NaturalQuery:   x.req.NaturalQuery,
		GeneratedQuery: x.query,
		Executed:       x.reached,
		Success:        !failed,
		Error:          errMsg,
		RowsReturned:   result.RowCount(),
	})

	outcome := observability.OutcomeSuccess
	switch {
	case x.denied:
		outcome = observability.OutcomeDenied
	case failed:
		outcome = observability.OutcomeError
	}
	observability.ObserveQueryExecution(x.desc.Engine, outcome, x.elapsed)

	if !x.reached {
		return
	}
	e.security.LogQueryExecution(ctx, x.desc.ID, audit.ExecutionDetails{
		Query:      x.query,
		Mutation:   x.mutation,
		Success:    !failed,
		Rows:       result.RowCount(),
		DurationMs: x.elapsed.Milliseconds(),
	})
}

// mutationDenial returns why a mutating query may not run, or "" when the
// database allows writes, the caller is an admin and the request opted in.
func mutationDenial(ctx context.Context, desc models.DatabaseDescriptor, requested bool) string {
	switch {
	case !desc.AllowMutations:
		return fmt.Sprintf("database %s is read-only", desc.ID)
	case !auth.IsAdmin(ctx):
		return "only administrators may run mutating queries"
	case !requested:
		return "mutating queries require allow_mutations to be set"
	}
	return ""
}
