package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestDiagnoseExtractsPgxDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "usage_records_admission_id_key", TableName: "usage_records"}
	err := Wrap(CodeConflict, fmt.Errorf("append record: %w", pgErr), "usage already recorded").
		WithDetails(map[string]any{"step": "record_usage"})

	d := Diagnose(err)
	require.Equal(t, CodeConflict, d.Code)
	require.Equal(t, "record_usage", d.Step)
	require.NotNil(t, d.DB)
	require.Equal(t, "23505", d.DB.Code)

	fields := d.LogFields()
	require.Equal(t, "usage_records_admission_id_key", fields["pg_constraint"])
	require.Equal(t, "record_usage", fields["step"])
	require.NotContains(t, fields, "pg_column")
	require.Len(t, fields["error_chain"], 3)
}

func TestDiagnoseReadsLibPQErrors(t *testing.T) {
	err := fmt.Errorf("grant: %w", &pq.Error{Code: "40001", Message: "could not serialize access"})
	d := Diagnose(err)
	require.NotNil(t, d.DB)
	require.Equal(t, "40001", d.DB.Code)
	require.Empty(t, d.Code)
}

func TestDiagnoseMarksExpectedOutcomes(t *testing.T) {
	d := Diagnose(New(CodeQuotaExhausted, "weekly allowance used"))
	require.True(t, d.Expected)
	require.Nil(t, d.DB)
	require.NotContains(t, d.LogFields(), "error_chain")

	require.Equal(t, Diagnostics{}, Diagnose(nil))
	require.False(t, Diagnose(stdErrors.New("boom")).Expected)
}
