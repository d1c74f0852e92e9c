package audit

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var statementBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func insertEventSQL(occurredAt time.Time, driver string, kind Kind, detail string) (string, []any, error) {
	return statementBuilder.
	Insert("audit_event").
	Columns("occurred_at", "driver", "kind", "detail").
	Values(occurredAt.UTC(), driver, string(kind), detail).
	ToSql()
}

// Recent returns the most recent limit events, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]Event, error) {
	query, args, err := statementBuilder.
	Select("id", "occurred_at", "driver", "kind", "detail").
	From("audit_event").
	OrderBy("id DESC").
	Limit(uint64(limit)).
	ToSql()
	if err != nil {
		return nil, err
	}

	var events []Event
	if err := db.conn.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, err
	}
	return events, nil
}

// ByKind returns the most recent limit events of a given kind.
func (db *DB) ByKind(ctx context.Context, kind Kind, limit int) ([]Event, error) {
	query, args, err := statementBuilder.
	Select("id", "occurred_at", "driver", "kind", "detail").
	From("audit_event").
	Where(sq.Eq{"kind": string(kind)}).
	OrderBy("id DESC").
	Limit(uint64(limit)).
	ToSql()
	if err != nil {
		return nil, err
	}

	var events []Event
	if err := db.conn.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, err
	}
	return events, nil
}
