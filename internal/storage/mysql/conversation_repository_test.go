package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"ChainPilot/internal/config"
)

func TestFileConversationRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "conversations.log")
	repo, err := NewFileConversationRepository(path, 2)
	if err != nil {
		t.Fatalf("failed to create file repo: %v", err)
	}

	ctx := context.Background()
	for i, endpoint := range []string{"/chat", "/launchpadChat", "/sentimentAnalysis"} {
		record := ConversationRecord{Endpoint: endpoint, Prompt: "p", Reply: "r", CreatedAt: int64(i + 1)}
		if err := repo.Save(ctx, record); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	list, err := repo.ListLatest(ctx, 10)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected in-memory cap of 2, got %d", len(list))
	}
	if list[0].Endpoint != "/sentimentAnalysis" || list[0].ID != 3 {
		t.Fatalf("records not sorted newest first: %+v", list)
	}

	reopened, err := NewFileConversationRepository(path, 0)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	restored, err := reopened.ListLatest(ctx, 0)
	if err != nil {
		t.Fatalf("list after reopen failed: %v", err)
	}
	if len(restored) != 3 || restored[2].Endpoint != "/chat" {
		t.Fatalf("unexpected restored records: %+v", restored)
	}

	if err := reopened.Save(ctx, ConversationRecord{Endpoint: "/chat"}); err != nil {
		t.Fatalf("save after reopen failed: %v", err)
	}
	latest, _ := reopened.ListLatest(ctx, 1)
	if latest[0].ID != 4 {
		t.Fatalf("expected ids to continue after reload, got %d", latest[0].ID)
	}
}

func TestFileConversationRepositorySkipsCorruptLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conversations.log")
	content := "{\"id\":1,\"endpoint\":\"/chat\",\"prompt\":\"hi\",\"reply\":\"hello\",\"created_at\":1}\nnot json\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	repo, err := NewFileConversationRepository(path, 10)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	list, _ := repo.ListLatest(context.Background(), 10)
	if len(list) != 1 || list[0].Reply != "hello" {
		t.Fatalf("unexpected records: %+v", list)
	}
}

func TestNewConversationRepositoryRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, _, err := NewConversationRepository(context.Background(), config.ConversationStoreConfig{Driver: "sqlite"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}

	repo, closeFn, err := NewConversationRepository(context.Background(), config.ConversationStoreConfig{
		Driver: "file",
		Path:   filepath.Join(t.TempDir(), "c.log"),
	})
	if err != nil {
		t.Fatalf("file driver: %v", err)
	}
	defer closeFn()
	if _, ok := repo.(*FileConversationRepository); !ok {
		t.Fatalf("unexpected repository type %T", repo)
	}
}

func TestSQLConversationRepositorySave(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		execOp(insertConversationSQL, mockResult{lastInsertID: 42, rowsAffected: 1}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	repo := &SQLConversationRepository{db: db}
	record := ConversationRecord{Endpoint: "/chat", Prompt: "bridge 1", Intent: "bridge", Reply: "{}", CreatedAt: 1}
	if err := repo.Save(context.Background(), record); err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func TestSQLConversationRepositoryListLatest(t *testing.T) {
	t.Parallel()

	rows := mockRowsData{
		columns: []string{"id", "endpoint", "prompt", "intent", "reply", "result", "strategy", "error_code", "created_at"},
		values: [][]driver.Value{
			{int64(2), "/launchpadChat", "launch", "", "raw", "{\"name\":\"Foo\"}", "brace_scan", "", int64(20)},
			{int64(1), "/chat", "hi", "other", "hello", nil, "", "", int64(10)},
		},
	}

	db, drv := newMockDB(t, []mockOperation{queryOp(listConversationsSQL, rows)})
	defer drv.assertConsumed(t)
	defer db.Close()

	repo := &SQLConversationRepository{db: db}
	list, err := repo.ListLatest(context.Background(), 2)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != 2 || list[0].Strategy != "brace_scan" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[1].Result != "" {
		t.Fatalf("expected NULL result to scan as empty string, got %q", list[1].Result)
	}
}

func TestMigrateAppliesPendingFiles(t *testing.T) {
	t.Parallel()

	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(files) < 2 || files[0].version != "0001" {
		t.Fatalf("unexpected migration files: %+v", files)
	}

	ops := []mockOperation{
		execOp(createMigrationsTable, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{
			columns: []string{"version"},
			values:  [][]driver.Value{{"0001"}},
		}),
	}
	for _, file := range files[1:] {
		ops = append(ops, beginOp())
		for _, stmt := range file.statements {
			ops = append(ops, execOp(stmt, mockResult{}))
		}
		ops = append(ops,
			execOp(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, mockResult{rowsAffected: 1}),
			commitOp(),
		)
	}

	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
}

func TestMigrateRollsBackFailedStatement(t *testing.T) {
	t.Parallel()

	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}

	failing := execOp(files[0].statements[0], mockResult{})
	failing.err = fmt.Errorf("syntax error")
	ops := []mockOperation{
		execOp(createMigrationsTable, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{columns: []string{"version"}}),
		beginOp(),
		failing,
		rollbackOp(),
	}

	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	err = Migrate(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), files[0].name) {
		t.Fatalf("expected failure naming %s, got %v", files[0].name, err)
	}
}

func TestSplitSQLStatements(t *testing.T) {
	t.Parallel()

	got := splitSQLStatements("CREATE TABLE a (id INT);\n\n  ;CREATE TABLE b (id INT);")
	if len(got) != 2 || got[1] != "CREATE TABLE b (id INT)" {
		t.Fatalf("unexpected statements: %q", got)
	}
	if v := parseMigrationVersion("0003_add_index.sql"); v != "0003" {
		t.Fatalf("unexpected version %q", v)
	}
}

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops []mockOperation
	idx int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func beginOp() mockOperation { return mockOperation{typ: opBegin} }

func commitOp() mockOperation { return mockOperation{typ: opCommit} }

func rollbackOp() mockOperation { return mockOperation{typ: opRollback} }

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *queueDriver) Open(string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

func (d *queueDriver) next(expected operationType, query string) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&d.idx))
	if idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &d.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", op.typ, expected)
	}
	atomic.AddInt32(&d.idx, 1)
	if op.query != "" && normalizeSQL(op.query) != normalizeSQL(query) {
		return nil, fmt.Errorf("unexpected query. want %q got %q", normalizeSQL(op.query), normalizeSQL(query))
	}
	return op, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *mockConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	op, err := c.driver.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockTx{driver: c.driver}, nil
}

func (c *mockConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) Ping(context.Context) error { return nil }

type mockTx struct {
	driver *queueDriver
}

func (t *mockTx) Commit() error {
	op, err := t.driver.next(opCommit, "")
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) Rollback() error {
	op, err := t.driver.next(opRollback, "")
	if err != nil {
		return err
	}
	return op.err
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
