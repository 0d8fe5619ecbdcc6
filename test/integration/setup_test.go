package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigilo/vigilo/internal/domain/identity"
	"github.com/vigilo/vigilo/internal/platform/auth"
	"github.com/vigilo/vigilo/internal/platform/db"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// globalDB is the package-level test database, initialized once in TestMain.
var globalDB *testDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tdb, cleanup, err := setupDatabase(ctx)
	if err != nil {
		// No reachable database and no Docker: skip the whole package
		// rather than failing environments that cannot run it.
		fmt.Fprintf(os.Stderr, "skipping integration tests: %v\n", err)
		os.Exit(0)
	}

	globalDB = tdb
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// setupDatabase connects to TEST_DATABASE_URL when set, otherwise starts a
// throwaway postgres:16-alpine container, then applies all migrations.
func setupDatabase(ctx context.Context) (*testDB, func(), error) {
	connStr := os.Getenv("TEST_DATABASE_URL")
	cleanup := func() {}

	if connStr == "" {
		var err error
		connStr, cleanup, err = startDockerPostgres(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("start postgres container: %w", err)
		}
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		cleanup()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	migrator := db.NewMigrator(pool, findMigrationsDir())
	if _, err := migrator.Up(ctx); err != nil {
		pool.Close()
		cleanup()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &testDB{Pool: pool, ConnStr: connStr}, func() {
		pool.Close()
		cleanup()
	}, nil
}

// findMigrationsDir locates the migrations directory relative to this file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	// test/integration -> repository root
	return filepath.Join(dir, "..", "..", "migrations")
}

// resetDB empties every domain table so each test starts from a clean
// slate. Migrations bookkeeping is left alone.
func resetDB(t *testing.T) {
	t.Helper()
	_, err := globalDB.Pool.Exec(context.Background(), `
		TRUNCATE indicator_value, indicator_config,
			risk_assessment, risk,
			action, attachment, approval,
			fall_detail, medication_detail, infection_detail, pressure_ulcer_detail,
			incident, yearly_sequence,
			physician, users, department
		CASCADE`)
	if err != nil {
		t.Fatalf("reset database: %v", err)
	}
}

// -- Seed helpers --

func seedDepartment(t *testing.T, code, name string) *identity.Department {
	t.Helper()
	d := &identity.Department{Code: code, Name: name, Active: true}
	if err := identity.NewDepartmentRepo(globalDB.Pool).Create(context.Background(), d); err != nil {
		t.Fatalf("seed department %s: %v", code, err)
	}
	return d
}

func seedUser(t *testing.T, email, role string, departmentID *uuid.UUID) *identity.User {
	t.Helper()
	hash, err := auth.HashPassword("s3cret-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &identity.User{
		Email:        email,
		FullName:     "Test " + role,
		Role:         role,
		DepartmentID: departmentID,
		PasswordHash: hash,
		Active:       true,
	}
	if err := identity.NewUserRepo(globalDB.Pool).Create(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

// actorFor converts a seeded user into the auth.Actor domain services expect.
func actorFor(u *identity.User) auth.Actor {
	return auth.Actor{ID: u.ID, Role: u.Role, DepartmentID: u.DepartmentID}
}

func ptrStr(s string) *string { return &s }

func ptrInt(i int) *int { return &i }
