package db

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestUniqueViolation(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("exec failed: %w", &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry 'abc' for key 'submissions.PRIMARY'",
	})
	key, ok := UniqueViolation(err)
	if !ok {
		t.Fatalf("expected duplicate key error to be detected")
	}
	if key != "submissions.PRIMARY" {
		t.Fatalf("expected key submissions.PRIMARY, got %q", key)
	}

	if _, ok := UniqueViolation(&mysql.MySQLError{Number: 1045}); ok {
		t.Fatalf("expected access denied error not to be a unique violation")
	}
}

func TestIsNoRows(t *testing.T) {
	t.Parallel()
	if !IsNoRows(fmt.Errorf("scan failed: %w", sql.ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to be detected")
	}
	if IsNoRows(fmt.Errorf("other")) {
		t.Fatalf("expected unrelated error not to match")
	}
}

func TestPlaceholders(t *testing.T) {
	t.Parallel()
	cases := map[int]string{0: "", 1: "?", 3: "?, ?, ?"}
	for n, want := range cases {
		if got := Placeholders(n); got != want {
			t.Fatalf("expected %q for %d, got %q", want, n, got)
		}
	}
}
