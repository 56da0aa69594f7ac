package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	input := `
-- leading comment
CREATE TABLE a (x UInt64) ENGINE = Memory;

-- between
CREATE TABLE b (y String)
ENGINE = Memory;
`
	stmts := splitStatements(input)
	if len(stmts) != 2 {
		t.Fatalf("len = %d, want 2: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], "CREATE TABLE a") {
		t.Errorf("stmts[0] = %q", stmts[0])
	}
	if !strings.Contains(stmts[1], "ENGINE = Memory") {
		t.Errorf("stmts[1] = %q", stmts[1])
	}
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"plain", "SELECT 1;", false},
		{"string without semicolon", "SELECT 'a';", false},
		{"escaped quote", "SELECT 'it''s';", false},
		{"semicolon in string", "SELECT 'a;b';", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateNoSemicolonInStrings(tt.sql)
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/settlement")
	if err != nil {
		t.Fatalf("databaseFromDSN error: %v", err)
	}
	if db != "settlement" {
		t.Errorf("db = %q, want settlement", db)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for dsn without database")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	for _, tc := range []struct {
		fsys fs.FS
		dir  string
	}{
		{PostgresFS, "postgres"},
		{ClickhouseFS, "clickhouse"},
	} {
		files, err := sqlFiles(tc.fsys, tc.dir)
		if err != nil {
			t.Fatalf("sqlFiles(%s) error: %v", tc.dir, err)
		}
		if len(files) == 0 {
			t.Errorf("no embedded migrations in %s", tc.dir)
		}
	}

	data, err := fs.ReadFile(ClickhouseFS, "clickhouse/001_settlement_events.sql")
	if err != nil {
		t.Fatalf("read clickhouse migration: %v", err)
	}
	if err := validateNoSemicolonInStrings(string(data)); err != nil {
		t.Errorf("clickhouse migration fails splitter validation: %v", err)
	}
	if got := len(splitStatements(string(data))); got != 2 {
		t.Errorf("clickhouse migration statements = %d, want 2", got)
	}
}
