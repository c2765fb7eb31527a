// Package spreadsheet converts uploaded xlsx workbooks into transaction
// rows following the upload convention of the existing spreadsheets
// (Portuguese column labels, decimal-comma amounts, serial or textual
// dates).
package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"findash/internal/core"
)

// ErrUnreadableFile is returned when the file cannot be opened as a
// workbook at all. Per-row problems never fail the parse; bad rows are
// skipped.
var ErrUnreadableFile = errors.New("file is not a readable spreadsheet")

// Column labels of the upload convention.
const (
	colDescription   = "Descrição"
	colType          = "Tipo"
	colValue         = "Valor liquido"
	colSubcategory   = "Subcategoria"
	colPaymentMethod = "Forma de pagamento"
	colIssueDate     = "Data de lançamento"
)

// Defaults applied when a column is absent or the cell is blank.
const (
	defaultDescription   = "N/A"
	defaultSubcategory   = "Outros"
	defaultPaymentMethod = "N/A"

	revenueToken = "receita"
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse reads the first sheet of an xlsx workbook and maps its rows to
// transactions. Rows whose amount does not parse to a finite non-negative
// number are silently dropped; remaining rows keep their input order.
func (p *Parser) Parse(r io.Reader) ([]core.ParsedTransaction, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []core.ParsedTransaction{}, nil
	}

	// Raw values keep serial dates and decimal-comma amounts exactly as
	// stored instead of applying the cell number format.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	if len(rows) < 2 {
		return []core.ParsedTransaction{}, nil
	}

	columns := headerIndex(rows[0])
	out := make([]core.ParsedTransaction, 0, len(rows)-1)
	for _, row := range rows[1:] {
		value, err := parseAmount(cell(row, columns, colValue, "0"))
		if err != nil {
			continue
		}

		out = append(out, core.ParsedTransaction{
			Description:   cell(row, columns, colDescription, defaultDescription),
			Type:          parseType(cell(row, columns, colType, "")),
			Value:         value,
			Subcategory:   cell(row, columns, colSubcategory, defaultSubcategory),
			PaymentMethod: cell(row, columns, colPaymentMethod, defaultPaymentMethod),
			IssueDate:     formatIssueDate(cell(row, columns, colIssueDate, "")),
		})
	}
	return out, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, label := range header {
		idx[label] = i
	}
	return idx
}

func cell(row []string, columns map[string]int, label, fallback string) string {
	i, ok := columns[label]
	if !ok || i >= len(row) || row[i] == "" {
		return fallback
	}
	return row[i]
}

// parseType maps the localized type token: "receita" (any case) means
// revenue, anything else is an expense.
func parseType(s string) core.TransactionType {
	if strings.ToLower(s) == revenueToken {
		return core.Revenue
	}
	return core.Expense
}

// parseAmount converts the first decimal comma to a point and parses the
// amount. Thousands separators get no special handling.
func parseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, core.ErrInvalidValue
	}
	return v, nil
}

// formatIssueDate converts a raw numeric serial date to DD/MM/YYYY using
// the 1900 epoch (day = serial − 1, normalized by the calendar). Textual
// cells pass through unchanged.
func formatIssueDate(s string) string {
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	ts := time.Date(1900, time.January, int(serial)-1, 0, 0, 0, 0, time.UTC)
	return core.FormatIssueDate(ts)
}
