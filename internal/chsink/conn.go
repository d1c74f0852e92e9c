package chsink

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	chdriver "github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// driverConn adapts a real clickhouse-go/v2 connection to the sink's
// minimal chClient interface.
type driverConn struct {
	conn chdriver.Conn
}

// Dial opens and pings a ClickHouse connection for dsn.
func Dial(ctx context.Context, dsn string) (*driverConn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("chsink: parsing DSN: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("chsink: opening connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("chsink: pinging ClickHouse: %w", err)
	}
	return &driverConn{conn: conn}, nil
}

func (d *driverConn) PrepareInsert(ctx context.Context, sql string) (chBatch, error) {
	batch, err := d.conn.PrepareBatch(ctx, sql)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// DescribeTable queries the live table schema, used at startup to validate
// that every configured column actually exists.
func (d *driverConn) DescribeTable(ctx context.Context, table string) (map[string]string, error) {
	rows, err := d.conn.Query(ctx, fmt.Sprintf("DESCRIBE TABLE %s", table))
	if err != nil {
		return nil, fmt.Errorf("chsink: describing table %q: %w", table, err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, typ, def1, def2, def3, def4, def5 string
		if err := rows.Scan(&name, &typ, &def1, &def2, &def3, &def4, &def5); err != nil {
			return nil, fmt.Errorf("chsink: scanning DESCRIBE TABLE row: %w", err)
		}
		out[name] = typ
	}
	return out, rows.Err()
}

func (d *driverConn) Close() error { return d.conn.Close() }
