package db

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestMigrateSQLiteCreatesDomainTables(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}

	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	for _, table := range []string{"diners", "eateries", "loyalty_configs", "loyalty_points", "loyalty_vouchers", "vouchers", "voucher_codes", "distribution_schedules", "reviews", "eatery_reviewers", "sessions", "password_resets", "settings"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}
	for _, column := range []string{"parent_id", "author_kind", "deleted", "edited"} {
		if !conn.Migrator().HasColumn("reviews", column) {
			t.Fatalf("reviews missing column %s", column)
		}
	}
	if !conn.Migrator().HasIndex("voucher_codes", "idx_voucher_codes_voucher_diner") {
		t.Fatalf("voucher_codes missing (voucher, diner) unique index")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	for i := 0; i < 2; i++ {
		if errMigrate := Migrate(conn); errMigrate != nil {
			t.Fatalf("migrate run %d: %v", i+1, errMigrate)
		}
	}
}

func TestDetectDialectFromDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/app":          DialectPostgres,
		"host=localhost dbname=app sslmode=off": DialectPostgres,
		"file:data/app.db":                      DialectSQLite,
		"sqlite://data/app.db":                  DialectSQLite,
		"app.db":                                DialectSQLite,
	}
	for dsn, want := range cases {
		got, err := detectDialectFromDSN(dsn)
		if err != nil {
			t.Fatalf("detect %q: %v", dsn, err)
		}
		if got != want {
			t.Fatalf("detect %q: expected %s, got %s", dsn, want, got)
		}
	}
	if _, err := detectDialectFromDSN("mysql://root@localhost/app"); err == nil {
		t.Fatalf("expected error for mysql dsn")
	}
}

func TestSQLiteDSNHelpers(t *testing.T) {
	if got := normalizeSQLiteDSN("sqlite://data/app.db"); got != "file:data/app.db" {
		t.Fatalf("unexpected normalized dsn %q", got)
	}
	got := ensureSQLiteParams("file:data/app.db")
	if got != "file:data/app.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)" {
		t.Fatalf("unexpected params %q", got)
	}
	if sqlitePathFromDSN("file:x?mode=memory&cache=shared") != "" {
		t.Fatalf("expected no path for memory dsn")
	}
	if sqlitePathFromDSN("file:data/app.db?_pragma=foreign_keys(1)") != "data/app.db" {
		t.Fatalf("unexpected sqlite path")
	}
}
