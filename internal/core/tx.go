package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"farm-ledger/internal/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared query helpers.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxRowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx (for Query).
type pgxRowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type dbQuerier interface {
	pgxQuerier
	pgxRowQuerier
}

// SetActorTx records the acting user for the rest of tx. Audit triggers and
// created_by column defaults read it back as app.current_user.
func SetActorTx(ctx context.Context, tx pgx.Tx, actor string) error {
	if _, err := tx.Exec(ctx, "SELECT set_config('app.current_user', $1, true)", actorOrDefault(actor)); err != nil {
		return fmt.Errorf("failed to set actor context: %w", err)
	}
	return nil
}

func actorOrDefault(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return SystemActor
	}
	return actor
}

// beginAs opens a transaction with the actor already set. Callers defer Rollback.
func beginAs(ctx context.Context, pool *pgxpool.Pool, actor string) (pgx.Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := SetActorTx(ctx, tx, actor); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return tx, nil
}

// ChangeNotifier receives an event after every committed engine mutation.
// Implementations must not block the caller for long and report their own failures.
type ChangeNotifier interface {
	NotifyChange(ctx context.Context, ev ChangeEvent)
}

type nopNotifier struct{}

func (nopNotifier) NotifyChange(context.Context, ChangeEvent) {}

// Option configures the notifier and logger shared by the engine services.
type Option func(*serviceBase)

// WithNotifier sets where committed-change events go. The default discards them.
func WithNotifier(n ChangeNotifier) Option {
	return func(b *serviceBase) {
		if n != nil {
			b.notifier = n
		}
	}
}

// WithLogger sets the service logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *serviceBase) {
		b.log = logger.OrNop(l)
	}
}

type serviceBase struct {
	pool     *pgxpool.Pool
	notifier ChangeNotifier
	log      *zap.Logger
}

func newServiceBase(pool *pgxpool.Pool, name string, opts []Option) serviceBase {
	b := serviceBase{pool: pool, notifier: nopNotifier{}, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&b)
	}
	b.log = b.log.Named(name)
	return b
}

// committed logs and publishes a mutation. Call only after tx.Commit succeeded.
func (b serviceBase) committed(ctx context.Context, entity, kind, id, actor string, fields ...zap.Field) {
	actor = actorOrDefault(actor)
	b.log.Debug(entity+" "+kind,
		append([]zap.Field{zap.String("id", id), zap.String("actor", actor)}, fields...)...)
	b.notifier.NotifyChange(ctx, ChangeEvent{
		Entity: entity,
		Kind:   kind,
		ID:     id,
		Actor:  actor,
		At:     time.Now().UTC(),
	})
}

// newShortID returns prefix followed by the first 8 upper-case hex characters of a UUID.
func newShortID(prefix string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// dateLayouts are accepted for user-entered dates, canonical form first.
var dateLayouts = []string{"2006-01-02", "20060102"}

// ParseDate normalizes a YYYY-MM-DD or YYYYMMDD date to YYYY-MM-DD.
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", validationErr("invalid date %q (want YYYY-MM-DD)", s)
}

// dateOrToday parses s, falling back to today's date when s is empty or malformed.
func dateOrToday(s string) string {
	if d, err := ParseDate(s); err == nil {
		return d
	}
	return today()
}

func today() string {
	return time.Now().Format("2006-01-02")
}

// optionalDate parses a nullable date; nil and blank stay nil.
func optionalDate(s *string) (*string, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	d, err := ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// blankToNil maps a nil or whitespace-only string to nil.
func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
