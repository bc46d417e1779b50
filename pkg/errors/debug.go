package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const maxChainDepth = 8

// DBDetails carries what the postgres driver reported about a failed statement.
type DBDetails struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// Diagnostics is the log-side view of an error: never sent to clients.
type Diagnostics struct {
	Message  string
	Code     Code
	Expected bool
	Step     any
	Chain    []string
	DB       *DBDetails
}

// Diagnose walks err, picking up its typed code, the failing step recorded in
// details and any postgres driver error from pgx or lib/pq.
func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	d := Diagnostics{Message: err.Error()}

	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Expected = MetadataFor(te.Code()).Expected
		if details, ok := te.Details().(map[string]any); ok {
			d.Step = details["step"]
		}
	}

	for e := err; e != nil && len(d.Chain) < maxChainDepth; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	d.DB = driverDetails(err)
	return d
}

func driverDetails(err error) *DBDetails {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &DBDetails{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &DBDetails{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}

// LogFields flattens the diagnostics, omitting empty values.
func (d Diagnostics) LogFields() map[string]any {
	fields := map[string]any{"error": d.Message}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	if d.Step != nil {
		fields["step"] = d.Step
	}
	if db := d.DB; db != nil {
		for key, val := range map[string]string{
			"pg_code":       db.Code,
			"pg_constraint": db.Constraint,
			"pg_table":      db.Table,
			"pg_column":     db.Column,
			"pg_detail":     db.Detail,
			"pg_message":    db.Message,
		} {
			if val != "" {
				fields[key] = val
			}
		}
	}
	return fields
}
