package snapshot

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"ledger-sync-service/internal/models"
)

// RawSnapshot is the upload as sent by the spreadsheet sync. Pointer fields
// distinguish a missing value from a zero value.
type RawSnapshot struct {
	FileID             *string              `json:"fileId" validate:"required,min=1"`
	FileName           *string              `json:"fileName" validate:"required,min=1"`
	ModifiedAt         *string              `json:"modifiedAt" validate:"required"`
	OutstandingBalance NullableNumber       `json:"outstandingBalance"`
	ConsolidatedRows   []RawConsolidatedRow `json:"consolidatedRows" validate:"required,dive"`
	SaleRows           []RawSaleRow         `json:"saleRows" validate:"required,dive"`
}

// NullableNumber is a number whose key must be present but whose value may
// be null. Present stays false when the key is absent from the document.
type NullableNumber struct {
	Present bool
	Value   *float64
}

func (n *NullableNumber) UnmarshalJSON(b []byte) error {
	n.Present = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	n.Value = &f
	return nil
}

type RawConsolidatedRow struct {
	PaymentDate     *string  `json:"paymentDate"`
	Disbursement    *float64 `json:"disbursement" validate:"required"`
	BalanceSnapshot *float64 `json:"balanceSnapshot" validate:"required"`
	PaymentTypeTag  *string  `json:"paymentTypeTag,omitempty"`
	SourceSheet     *string  `json:"sourceSheet,omitempty"`
	SourceRow       *float64 `json:"sourceRow,omitempty"`
}

type RawSaleRow struct {
	SaleDate    *string  `json:"saleDate" validate:"required"`
	TotalAmount *float64 `json:"totalAmount" validate:"required"`
}

// FieldProblem names one invalid field by its JSON path, e.g.
// "consolidatedRows[3].paymentDate".
type FieldProblem struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ValidationError lists every problem found in a snapshot.
type ValidationError struct {
	Problems []FieldProblem
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Path+": "+p.Reason)
	}
	return "invalid snapshot: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(path, reason string) {
	e.Problems = append(e.Problems, FieldProblem{Path: path, Reason: reason})
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseDate accepts RFC 3339 timestamps and bare dates. Values without a
// zone are taken as UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Decode reads a JSON snapshot. Malformed JSON and type mismatches are
// reported as a ValidationError; an oversized body is returned as is.
func Decode(r io.Reader) (RawSnapshot, error) {
	var raw RawSnapshot
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return RawSnapshot{}, err
		}
		verr := &ValidationError{}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			verr.add(typeErr.Field, fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value))
		} else {
			verr.add("$", "malformed JSON: "+err.Error())
		}
		return RawSnapshot{}, verr
	}
	return raw, nil
}

// Validate checks a raw snapshot and converts it to its typed form. It
// never touches the store, so a rejected snapshot leaves no trace.
func (v *Validator) Validate(raw RawSnapshot) (*models.Snapshot, error) {
	verr := &ValidationError{}

	if err := v.validate.Struct(raw); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, fmt.Errorf("validating snapshot: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.add(fieldPath(fe.Namespace()), describe(fe))
		}
	}

	out := &models.Snapshot{}
	if raw.FileID != nil {
		out.FileID = *raw.FileID
	}
	if raw.FileName != nil {
		out.FileName = *raw.FileName
	}
	if raw.ModifiedAt != nil {
		t, err := ParseDate(*raw.ModifiedAt)
		if err != nil {
			verr.add("modifiedAt", err.Error())
		}
		out.ModifiedAt = t
	}
	switch {
	case !raw.OutstandingBalance.Present:
		verr.add("outstandingBalance", "is required")
	case raw.OutstandingBalance.Value != nil:
		if d, ok := finite(verr, "outstandingBalance", *raw.OutstandingBalance.Value); ok {
			out.OutstandingBalance = decimal.NewNullDecimal(d)
		}
	}

	out.ConsolidatedRows = make([]models.ConsolidatedRow, 0, len(raw.ConsolidatedRows))
	for i, r := range raw.ConsolidatedRows {
		path := fmt.Sprintf("consolidatedRows[%d]", i)
		row := models.ConsolidatedRow{}
		// An empty cell arrives as "" and means the same as null.
		if r.PaymentDate != nil && *r.PaymentDate != "" {
			t, err := ParseDate(*r.PaymentDate)
			if err != nil {
				verr.add(path+".paymentDate", err.Error())
			} else {
				row.PaymentDate = sql.NullTime{Time: t, Valid: true}
			}
		}
		if r.Disbursement != nil {
			row.Disbursement, _ = finite(verr, path+".disbursement", *r.Disbursement)
		}
		if r.BalanceSnapshot != nil {
			row.BalanceSnapshot, _ = finite(verr, path+".balanceSnapshot", *r.BalanceSnapshot)
		}
		if r.PaymentTypeTag != nil && *r.PaymentTypeTag != "" {
			row.PaymentTypeTag = sql.NullString{String: *r.PaymentTypeTag, Valid: true}
		}
		if r.SourceSheet != nil && *r.SourceSheet != "" {
			row.SourceSheet = sql.NullString{String: *r.SourceSheet, Valid: true}
		}
		if r.SourceRow != nil {
			n := *r.SourceRow
			switch {
			case math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n):
				verr.add(path+".sourceRow", "must be a whole number")
			case n < math.MinInt32 || n > math.MaxInt32:
				verr.add(path+".sourceRow", "is out of range")
			default:
				row.SourceRow = sql.NullInt64{Int64: int64(n), Valid: true}
			}
		}
		out.ConsolidatedRows = append(out.ConsolidatedRows, row)
	}

	out.SaleRows = make([]models.SaleRow, 0, len(raw.SaleRows))
	for i, r := range raw.SaleRows {
		path := fmt.Sprintf("saleRows[%d]", i)
		row := models.SaleRow{}
		if r.SaleDate != nil {
			t, err := ParseDate(*r.SaleDate)
			if err != nil {
				verr.add(path+".saleDate", err.Error())
			}
			row.SaleDate = t
		}
		if r.TotalAmount != nil {
			row.TotalAmount, _ = finite(verr, path+".totalAmount", *r.TotalAmount)
		}
		out.SaleRows = append(out.SaleRows, row)
	}

	if len(verr.Problems) > 0 {
		return nil, verr
	}
	return out, nil
}

func finite(verr *ValidationError, path string, n float64) (decimal.Decimal, bool) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		verr.add(path, "must be a finite number")
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(n), true
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must not be empty"
	default:
		return "failed " + fe.Tag()
	}
}
