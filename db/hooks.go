package db

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Statement observation
// ─────────────────────────────────────────────────────────────────────────────

// Statement describes one SQL statement as it passes through a session.
type Statement struct {
	// Session is the id of the issuing session (see Session.ID).
	Session string
	// Verb is the statement kind, as classified by Verb.
	Verb string
	// Query is the SQL text as sent to the driver.
	Query string
	// Args are the bound parameters.
	Args []any
	// InTx is true when the statement runs inside a transaction or savepoint.
	InTx bool
}

// Hook observes statements on a session.
//
// A session is used by one goroutine at a time, but the same Hook value may be
// shared by every session of a Store, so implementations MUST be
// goroutine-safe. Panics inside a hook are recovered and logged.
type Hook interface {
	// BeforeStatement runs right before st is handed to the driver.
	BeforeStatement(ctx context.Context, st *Statement)

	// AfterStatement runs once the driver returns. err is the mapped error the
	// caller sees; for single-row reads it is nil because the outcome is only
	// known at Scan.
	AfterStatement(ctx context.Context, st *Statement, d time.Duration, err error)
}

var verbs = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"PRAGMA": true, "CREATE": true, "DROP": true,
	"SAVEPOINT": true, "RELEASE": true, "ROLLBACK": true,
	"BEGIN": true, "COMMIT": true,
}

// Verb returns the upper-cased first keyword of query, or "OTHER" when it is
// not one of the statement kinds the core issues. Log and metric labels share
// it so their cardinality stays bounded.
func Verb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "OTHER"
	}
	v := strings.ToUpper(fields[0])
	if !verbs[v] {
		return "OTHER"
	}
	return v
}

// hookChain dispatches to the hooks of one session and stamps every
// statement with that session's id.
type hookChain struct {
	session string
	hooks   []Hook
}

func newHookChain(session string, hooks []Hook) hookChain {
	filtered := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return hookChain{session: session, hooks: filtered}
}

// observe runs fn between the Before and After callbacks of every hook.
func (c hookChain) observe(ctx context.Context, query string, args []any, inTx bool, fn func() error) error {
	if len(c.hooks) == 0 {
		return fn()
	}
	st := &Statement{Session: c.session, Verb: Verb(query), Query: query, Args: args, InTx: inTx}
	for _, h := range c.hooks {
		safeHook(ctx, "BeforeStatement", st, func() { h.BeforeStatement(ctx, st) })
	}
	start := time.Now()
	err := fn()
	d := time.Since(start)
	for _, h := range c.hooks {
		safeHook(ctx, "AfterStatement", st, func() { h.AfterStatement(ctx, st, d, err) })
	}
	return err
}

func safeHook(ctx context.Context, phase string, st *Statement, call func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "critique/db: hook panic",
				"phase", phase, "session", st.Session, "verb", st.Verb, "panic", r)
		}
	}()
	call()
}

// ── Logging hook ─────────────────────────────────────────────────────────────

// LogHookConfig configures the structured logging hook.
type LogHookConfig struct {
	// Logger defaults to slog.Default() if nil.
	Logger *slog.Logger
	// SlowQueryThreshold logs a warning when duration exceeds this value.
	// Zero disables slow-query logging.
	SlowQueryThreshold time.Duration
	// LogArgs includes bound parameters in log entries. Profile columns hold
	// personal data (email, mobile), keep it off outside development.
	LogArgs bool
}

// NewLogHook returns a Hook that writes one slog record per statement,
// tagged with the session id, the verb and the error kind on failure.
func NewLogHook(cfg LogHookConfig) Hook {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &logHook{cfg: cfg, logger: logger}
}

type logHook struct {
	cfg    LogHookConfig
	logger *slog.Logger
}

func (h *logHook) BeforeStatement(context.Context, *Statement) {}

func (h *logHook) AfterStatement(ctx context.Context, st *Statement, d time.Duration, err error) {
	attrs := []any{
		slog.String("session", st.Session),
		slog.String("verb", st.Verb),
		slog.Bool("tx", st.InTx),
		slog.String("query", trimQuery(st.Query)),
		slog.Duration("duration", d),
	}
	if h.cfg.LogArgs && len(st.Args) > 0 {
		attrs = append(attrs, slog.Any("args", st.Args))
	}

	switch {
	case err != nil:
		// Expected outcomes of the taxonomy are not operator errors.
		level := slog.LevelError
		if IsNotFound(err) || IsConflict(err) {
			level = slog.LevelInfo
		}
		h.logger.Log(ctx, level, "critique/db: statement failed",
			append(attrs, slog.String("kind", Kind(err)), slog.Any("error", err))...)
	case h.cfg.SlowQueryThreshold > 0 && d > h.cfg.SlowQueryThreshold:
		h.logger.WarnContext(ctx, "critique/db: slow statement", attrs...)
	default:
		h.logger.DebugContext(ctx, "critique/db: statement", attrs...)
	}
}

func trimQuery(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 500 {
		return q[:500] + "…"
	}
	return q
}

// ── Metrics hook ─────────────────────────────────────────────────────────────

// MetricsCollector receives one observation per statement.
// See package metrics for the Prometheus implementation.
type MetricsCollector interface {
	// RecordStatement is called after every statement. verb comes from Verb
	// and outcome from Kind.
	RecordStatement(verb, outcome string, d time.Duration)
}

// NewMetricsHook returns a Hook that feeds a MetricsCollector.
func NewMetricsHook(collector MetricsCollector) Hook {
	return &metricsHook{c: collector}
}

type metricsHook struct{ c MetricsCollector }

func (h *metricsHook) BeforeStatement(context.Context, *Statement) {}

func (h *metricsHook) AfterStatement(_ context.Context, st *Statement, d time.Duration, err error) {
	h.c.RecordStatement(st.Verb, Kind(err), d)
}
