package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	Revenue TransactionType = "revenue"
	Expense TransactionType = "expense"
)

// IssueDateLayout is the textual form transactions carry their calendar
// date in, as written by the upload convention (e.g. "01/12/2024").
const IssueDateLayout = "02/01/2006"

type (
	TransactionType string

	// Transaction is one ledger entry belonging to a dataset and to the
	// import batch it arrived in.
	Transaction struct {
		ID            string
		Description   string
		Type          TransactionType
		Value         float64
		Subcategory   string
		PaymentMethod string
		IssueDate     string // DD/MM/YYYY
		DatasetID     string
		FileID        string
	}

	// ParsedTransaction is a transaction as produced by the spreadsheet
	// parser, before the caller assigns IDs at persistence time.
	ParsedTransaction struct {
		Description   string
		Type          TransactionType
		Value         float64
		Subcategory   string
		PaymentMethod string
		IssueDate     string // DD/MM/YYYY
	}

	// Dataset is a tenant/company scope that owns imported files and,
	// through them, transactions.
	Dataset struct {
		ID   string
		Name string
	}

	// ImportedFile records one upload batch. Immutable once created;
	// deleting it cascades to every transaction carrying its ID.
	ImportedFile struct {
		ID               string
		FileName         string
		TransactionCount int
		ImportedAt       time.Time
	}
)

var (
	ErrInvalidValue     = errors.New("value must be a finite non-negative number")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidIssueDate = errors.New("invalid issue date")
	ErrEmptyName        = errors.New("empty name")
)

func (t TransactionType) Valid() bool {
	return t == Revenue || t == Expense
}

// ParseIssueDate parses a DD/MM/YYYY label into a calendar date.
func ParseIssueDate(s string) (time.Time, error) {
	ts, err := time.Parse(IssueDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidIssueDate, s)
	}
	return ts, nil
}

// FormatIssueDate renders a calendar date in the DD/MM/YYYY convention.
func FormatIssueDate(ts time.Time) string {
	return ts.Format(IssueDateLayout)
}

func (p ParsedTransaction) Validate() error {
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) || p.Value < 0 {
		return ErrInvalidValue
	}
	if !p.Type.Valid() {
		return ErrInvalidType
	}
	if _, err := ParseIssueDate(p.IssueDate); err != nil {
		return err
	}
	return nil
}

func (t Transaction) Validate() error {
	return ParsedTransaction{
		Description:   t.Description,
		Type:          t.Type,
		Value:         t.Value,
		Subcategory:   t.Subcategory,
		PaymentMethod: t.PaymentMethod,
		IssueDate:     t.IssueDate,
	}.Validate()
}

func (d Dataset) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyName
	}
	if len(d.Name) > 120 {
		return errors.New("name too long (max 120 characters)")
	}
	return nil
}
