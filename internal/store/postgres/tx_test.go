package postgres

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/tokenarena/internal/domain"
)

func TestListClause(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		base      []any
		opts      domain.ListOpts
		wantQuery string
		wantArgs  int
	}{
		{
			name:      "no options",
			opts:      domain.ListOpts{},
			wantQuery: "SELECT 1 WHERE 1=1 ORDER BY seq",
			wantArgs:  0,
		},
		{
			name:      "since and paging",
			opts:      domain.ListOpts{Since: &since, Limit: 10, Offset: 20},
			wantQuery: "SELECT 1 WHERE 1=1 AND created_at >= $1 ORDER BY seq LIMIT $2 OFFSET $3",
			wantArgs:  3,
		},
		{
			name:      "numbering continues after base args",
			base:      []any{"x"},
			opts:      domain.ListOpts{Limit: 5},
			wantQuery: "SELECT 1 WHERE 1=1 ORDER BY seq LIMIT $2",
			wantArgs:  2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := listClause("SELECT 1 WHERE 1=1", tt.base, "created_at", "seq", tt.opts)
			if q != tt.wantQuery {
				t.Errorf("query: got %q, want %q", q, tt.wantQuery)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("args: got %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	serialization := fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40001"})
	deadlock := &pgconn.PgError{Code: "40P01"}
	unique := &pgconn.PgError{Code: "23505"}

	if !isSerializationError(serialization) || !isSerializationError(deadlock) {
		t.Error("serialization failures not detected")
	}
	if isSerializationError(unique) {
		t.Error("unique violation treated as serialization failure")
	}
	if !isUniqueViolation(unique) {
		t.Error("unique violation not detected")
	}
	if !errors.Is(notFound(pgx.ErrNoRows), domain.ErrNotFound) {
		t.Error("ErrNoRows not mapped to ErrNotFound")
	}
	other := errors.New("other")
	if got := notFound(other); !reflect.DeepEqual(got, other) {
		t.Errorf("notFound changed unrelated error: %v", got)
	}
}
