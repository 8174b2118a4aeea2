// Package ingest turns raw delimited upload rows into aggregated fraud signals.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-identity/harrier/internal/domain"
)

// Fixed column order of an IDP fraud-data file.
const (
	colTimestamp = iota
	colIDPEventID
	colFIDCode
	colContraIndicators
	colContraScore
	colRequestID
	colClientIPAddress
	colPID

	numFields
)

// Timestamp layouts accepted in upload files, tried in order. Files are
// day-first (UK convention) unless ISO formatted.
var timestampLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// RowError is a row-level parse or persistence failure. Field names the
// blamed column when one is attributable, else the row-exception sentinel.
type RowError struct {
	Row   int
	Field string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

func rowError(row int, field string, err error) *RowError {
	return &RowError{Row: row, Field: field, Err: err}
}

// Parser validates and normalizes one raw delimited row into a FraudSignal.
// A Parser is configured once per batch and is stateless across rows.
type Parser struct {
	idpEntityID string
	loc         *time.Location
	delimiter   rune
}

// NewParser builds a parser for one batch. The timezone is an IANA zone name
// applied to timestamps without an offset; the dialect names the delimiter
// style ("excel" comma-quoted by default).
func NewParser(idpEntityID, timezone, dialect string) (*Parser, error) {
	if timezone == "" {
		timezone = domain.DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", timezone, err)
	}

	delimiter, err := dialectDelimiter(dialect)
	if err != nil {
		return nil, err
	}

	return &Parser{
		idpEntityID: idpEntityID,
		loc:         loc,
		delimiter:   delimiter,
	}, nil
}

func dialectDelimiter(dialect string) (rune, error) {
	switch dialect {
	case "", "excel":
		return ',', nil
	case "excel-tab", "tab":
		return '\t', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	default:
		return 0, fmt.Errorf("unknown dialect %q", dialect)
	}
}

// Reader wraps the upload byte stream in a csv.Reader configured for the
// batch dialect. Rows are allowed to vary in field count so that short rows
// reach ParseRow and fail there, observably.
func (p *Parser) Reader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = p.delimiter
	cr.FieldsPerRecord = -1
	return cr
}

// ParseRow produces a FraudSignal from one raw row, or a *RowError carrying
// the 1-based row number and a descriptive message.
func (p *Parser) ParseRow(row []string, rowNumber int) (*domain.FraudSignal, error) {
	if len(row) < numFields {
		return nil, rowError(rowNumber, domain.FieldRowException,
			fmt.Errorf("index out of range: row has %d fields, need %d", len(row), numFields))
	}

	occurredAt, err := p.parseTimestamp(row[colTimestamp])
	if err != nil {
		return nil, rowError(rowNumber, "timestamp", err)
	}

	score, err := parseScore(row[colContraScore])
	if err != nil {
		return nil, rowError(rowNumber, "contra_score", err)
	}

	signal := domain.NewFraudSignal(p.idpEntityID, strings.TrimSpace(row[colIDPEventID]))
	signal.OccurredAt = occurredAt
	signal.FIDCode = strings.TrimSpace(row[colFIDCode])
	signal.ContraScore = score
	signal.RequestID = row[colRequestID]
	signal.ClientIPAddress = row[colClientIPAddress]
	signal.PID = row[colPID]

	for _, code := range splitIndicators(row[colContraIndicators]) {
		signal.ContraIndicators[code]++
	}

	return signal, nil
}

func (p *Parser) parseTimestamp(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, text, p.loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", text)
}

func parseScore(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	score, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("invalid contra score %q", text)
	}
	return score, nil
}

// splitIndicators splits a contra-indicator field on commas and embedded
// line breaks, trimming each code. An all-blank field yields no codes.
func splitIndicators(field string) []string {
	if strings.TrimSpace(field) == "" {
		return nil
	}

	parts := strings.FieldsFunc(field, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	codes := make([]string, 0, len(parts))
	for _, part := range parts {
		if code := strings.TrimSpace(part); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}
