package provider

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/loom/api"
	"github.com/agentic-research/loom/internal/bind"
	"github.com/agentic-research/loom/internal/dataset"
)

// Statement kinds.
const (
	StatementText  = "text"
	StatementTable = "table"
)

// Request is one statement execution.
type Request struct {
	Connection api.Connection
	Statement  string
	Kind       string
	Args       []any
}

// ResultColumn describes one result column.
type ResultColumn struct {
	Name string
	Kind dataset.Kind
}

// Result is the tabular outcome of a statement.
type Result struct {
	Columns []ResultColumn
	Rows    [][]any
}

// Executor runs relational statements.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// DBExecutor runs statements through database/sql, keeping one pool per
// connection.
type DBExecutor struct {
	mu    sync.Mutex
	dbs   map[string]*sql.DB
	named map[string]*sql.DB
}

// NewDBExecutor returns an executor with no open pools.
func NewDBExecutor() *DBExecutor {
	return &DBExecutor{
		dbs:   make(map[string]*sql.DB),
		named: make(map[string]*sql.DB),
	}
}

// Attach registers an already open pool under name. Attached pools are not
// closed by Close.
func (e *DBExecutor) Attach(name string, db *sql.DB) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.named[name] = db
}

func driverName(driver string) string {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return "sqlite"
	case "postgres", "postgresql", "pgx":
		return "pgx"
	}
	return driver
}

func (e *DBExecutor) getDB(conn api.Connection) (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if conn.Name != "" {
		if db, ok := e.named[conn.Name]; ok {
			return db, nil
		}
		if conn.DSN == "" {
			return nil, fmt.Errorf("connection %q is not attached", conn.Name)
		}
	}
	if conn.DSN == "" {
		return nil, fmt.Errorf("connection has no dsn")
	}

	driver := driverName(conn.Driver)
	key := driver + "\x00" + conn.DSN
	if db, ok := e.dbs[key]; ok {
		return db, nil
	}
	dsn := conn.DSN
	if driver == "sqlite" {
		dsn = readOnlyDSN(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(4)
	}
	e.dbs[key] = db
	return db, nil
}

// readOnlyDSN makes every pooled sqlite connection query-only.
func readOnlyDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=query_only(1)"
}

// Execute runs req and reads every row.
func (e *DBExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	db, err := e.getDB(req.Connection)
	if err != nil {
		return nil, err
	}
	stmt := req.Statement
	if strings.EqualFold(req.Kind, StatementTable) {
		stmt = "SELECT * FROM " + quoteIdent(req.Statement)
	}

	rows, err := db.QueryContext(ctx, stmt, req.Args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}
	res := &Result{Columns: make([]ResultColumn, len(types))}
	for i, ct := range types {
		res.Columns[i] = ResultColumn{Name: ct.Name(), Kind: dataset.KindFromDatabaseType(ct.DatabaseTypeName())}
	}

	for rows.Next() {
		vals := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok && res.Columns[i].Kind != dataset.KindBytes {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return res, nil
}

// Close closes every pool the executor opened.
func (e *DBExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var first error
	for key, db := range e.dbs {
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
		delete(e.dbs, key)
	}
	return first
}

func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// SQLCommand loads rows with a relational statement.
type SQLCommand struct {
	command
	exec Executor
}

func newSQLCommand(spec api.Command, env Env) (Command, error) {
	if spec.Statement == "" {
		return nil, fmt.Errorf("command %s: sql needs a statement", spec.ID)
	}
	if env.Executor == nil {
		return nil, fmt.Errorf("command %s: no sql executor configured", spec.ID)
	}
	return &SQLCommand{command: command{spec: spec}, exec: env.Executor}, nil
}

// connection returns the declared connection, or the parent's when the
// command declares none.
func (s *SQLCommand) connection(parent Command) api.Connection {
	if s.spec.Connection != nil {
		return *s.spec.Connection
	}
	if p, ok := parent.(*SQLCommand); ok {
		return p.connection(nil)
	}
	return api.Connection{}
}

// Fill runs the statement with parameters bound positionally.
func (s *SQLCommand) Fill(c *bind.Context, ds *dataset.Dataset, parent Command) error {
	args, err := s.args(c, parent)
	if err != nil {
		return err
	}
	vals := make([]any, len(args))
	for i, a := range args {
		vals[i] = a.Value
	}

	res, err := s.exec.Execute(c.Std(), Request{
		Connection: s.connection(parent),
		Statement:  s.spec.Statement,
		Kind:       s.spec.StatementKind,
		Args:       vals,
	})
	if err != nil {
		return err
	}

	t := ds.EnsureTable(s.Table())
	for _, col := range res.Columns {
		t.AddColumn(col.Name, col.Kind)
	}
	for _, r := range res.Rows {
		row := make(map[string]any, len(r))
		for i, v := range r {
			row[res.Columns[i].Name] = v
		}
		t.AddRow(row)
	}
	s.applyMapping(t)
	return nil
}
