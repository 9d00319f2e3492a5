package db

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/wunderabt/power-meter/internal/logging"
)

// tracingConnector opens sqlite3 connections that log each statement at
// debug level before running it.
type tracingConnector struct {
	dsn    string
	logger *slog.Logger
}

func newTracingConnector(dsn string, logger *slog.Logger) driver.Connector {
	return &tracingConnector{dsn: dsn, logger: logging.OrDefault(logger)}
}

func (c *tracingConnector) Connect(context.Context) (driver.Conn, error) {
	conn, err := (&sqlite3.SQLiteDriver{}).Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &tracedConn{Conn: conn, logger: c.logger}, nil
}

func (c *tracingConnector) Driver() driver.Driver { return &sqlite3.SQLiteDriver{} }

type tracedConn struct {
	driver.Conn
	logger *slog.Logger
}

func (c *tracedConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	ex, ok := c.Conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	c.trace("exec", query, args)
	return ex.ExecContext(ctx, query, args)
}

func (c *tracedConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := c.Conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	c.trace("query", query, args)
	return q.QueryContext(ctx, query, args)
}

func (c *tracedConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.Conn.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019 fallback for drivers without BeginTx
	return c.Conn.Begin()
}

func (c *tracedConn) trace(op, query string, args []driver.NamedValue) {
	vals := make([]string, len(args))
	for i, a := range args {
		v := "NULL"
		if a.Value != nil {
			v = fmt.Sprint(a.Value)
		}
		if a.Name != "" {
			v = a.Name + "=" + v
		}
		vals[i] = v
	}
	c.logger.Debug("sql", "op", op, "sql", query, "args", vals)
}
