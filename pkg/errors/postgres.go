package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// PGFault is the Postgres side of a failed statement, from either driver.
type PGFault struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

func PGFaultOf(err error) (PGFault, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return PGFault{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return PGFault{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return PGFault{}, false
}

type constraintRule struct {
	code    Code
	message string
}

// storefrontConstraints maps schema constraints onto the error a service
// would have returned had its own check seen the conflicting row first.
var storefrontConstraints = map[string]constraintRule{
	"uq_returns_open_per_order":             {CodeValidation, "a return request is already pending for this order"},
	"uq_promotions_code":                    {CodeConflict, "promotion code already exists"},
	"uq_payments_order":                     {CodeConflict, "order already has a payment"},
	"uq_inventory_records_product":          {CodeConflict, "product already has an inventory record"},
	"uq_users_email":                        {CodeConflict, "email already registered"},
	"inventory_records_available_qty_check": {CodeStateConflict, "insufficient stock"},
	"inventory_records_reserved_qty_check":  {CodeStateConflict, "insufficient stock"},
	"promotions_end_date_check":             {CodeValidation, "end date must be after start date"},
	"promotions_discount_value_check":       {CodeValidation, "discount value must be greater than 0"},
	"returns_refund_amount_check":           {CodeValidation, "refund amount must be greater than 0"},
}

// FromConstraint translates a Postgres integrity failure into a typed error.
// It returns nil for anything that is not a known storefront constraint or
// a generic foreign key or check violation.
func FromConstraint(err error) *Error {
	fault, ok := PGFaultOf(err)
	if !ok {
		return nil
	}
	if rule, ok := storefrontConstraints[fault.Constraint]; ok {
		return Wrap(rule.code, err, rule.message)
	}
	switch fault.Code {
	case pgForeignKeyViolation:
		return Wrap(CodeNotFound, err, "referenced record does not exist")
	case pgCheckViolation:
		return Wrap(CodeValidation, err, fmt.Sprintf("%s value out of range", fault.Table))
	case pgUniqueViolation:
		return Wrap(CodeConflict, err, "record already exists")
	}
	return nil
}

// LogFields flattens err for structured logs: the typed code, the wrap
// chain and any Postgres fault.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}
	if typed := As(err); typed != nil {
		fields["error_code"] = typed.Code()
	}
	var chain []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	fields["error_chain"] = chain
	if fault, ok := PGFaultOf(err); ok {
		fields["pg_code"] = fault.Code
		fields["pg_constraint"] = fault.Constraint
		fields["pg_table"] = fault.Table
		if fault.Column != "" {
			fields["pg_column"] = fault.Column
		}
		if fault.Detail != "" {
			fields["pg_detail"] = fault.Detail
		}
	}
	return fields
}
