package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opensource-identity/harrier/internal/domain"
)

func TestParseRow(t *testing.T) {
	parser, err := NewParser("idp-001", "Europe/London", "excel")
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	t.Run("ValidRow", func(t *testing.T) {
		row := []string{
			"05/03/2024 14:30:00",
			"event-001",
			"FID-42",
			"A04,D02",
			"-5",
			"req-001",
			"203.0.113.9",
			"pid-001",
		}

		signal, err := parser.ParseRow(row, 2)
		if err != nil {
			t.Fatalf("ParseRow failed: %v", err)
		}

		if signal.IDPEntityID != "idp-001" {
			t.Errorf("expected IDPEntityID idp-001, got %s", signal.IDPEntityID)
		}
		if signal.IDPEventID != "event-001" {
			t.Errorf("expected IDPEventID event-001, got %s", signal.IDPEventID)
		}
		if signal.FIDCode != "FID-42" {
			t.Errorf("expected FIDCode FID-42, got %s", signal.FIDCode)
		}
		if signal.ContraScore != -5 {
			t.Errorf("expected ContraScore -5, got %d", signal.ContraScore)
		}
		if signal.RequestID != "req-001" {
			t.Errorf("expected RequestID req-001, got %s", signal.RequestID)
		}
		if signal.ClientIPAddress != "203.0.113.9" {
			t.Errorf("expected ClientIPAddress 203.0.113.9, got %s", signal.ClientIPAddress)
		}
		if signal.PID != "pid-001" {
			t.Errorf("expected PID pid-001, got %s", signal.PID)
		}

		loc, _ := time.LoadLocation("Europe/London")
		want := time.Date(2024, time.March, 5, 14, 30, 0, 0, loc)
		if !signal.OccurredAt.Equal(want) {
			t.Errorf("expected OccurredAt %v, got %v", want, signal.OccurredAt)
		}

		if len(signal.ContraIndicators) != 2 {
			t.Errorf("expected 2 contra indicators, got %d", len(signal.ContraIndicators))
		}
		if signal.ContraIndicators["A04"] != 1 || signal.ContraIndicators["D02"] != 1 {
			t.Errorf("unexpected contra indicators: %v", signal.ContraIndicators)
		}
	})

	t.Run("DayFirstTimestamp", func(t *testing.T) {
		row := []string{"02/01/2024 09:00", "event-002", "FID-1", "", "0", "", "", ""}

		signal, err := parser.ParseRow(row, 2)
		if err != nil {
			t.Fatalf("ParseRow failed: %v", err)
		}

		// 02/01 is the 2nd of January, not the 1st of February
		if signal.OccurredAt.Month() != time.January || signal.OccurredAt.Day() != 2 {
			t.Errorf("expected 2 January, got %v", signal.OccurredAt)
		}
	})

	t.Run("ISOTimestamp", func(t *testing.T) {
		row := []string{"2024-03-05T14:30:00", "event-003", "FID-1", "", "0", "", "", ""}

		signal, err := parser.ParseRow(row, 2)
		if err != nil {
			t.Fatalf("ParseRow failed: %v", err)
		}
		if signal.OccurredAt.Year() != 2024 || signal.OccurredAt.Month() != time.March {
			t.Errorf("unexpected timestamp: %v", signal.OccurredAt)
		}
	})

	t.Run("InvalidTimestamp", func(t *testing.T) {
		row := []string{"not-a-date", "event-004", "FID-1", "", "0", "", "", ""}

		_, err := parser.ParseRow(row, 7)
		if err == nil {
			t.Fatal("expected error for invalid timestamp")
		}

		var rowErr *RowError
		if !errors.As(err, &rowErr) {
			t.Fatalf("expected *RowError, got %T", err)
		}
		if rowErr.Row != 7 {
			t.Errorf("expected row 7, got %d", rowErr.Row)
		}
		if rowErr.Field != "timestamp" {
			t.Errorf("expected field timestamp, got %s", rowErr.Field)
		}
	})

	t.Run("InvalidScore", func(t *testing.T) {
		row := []string{"05/03/2024", "event-005", "FID-1", "", "abc", "", "", ""}

		_, err := parser.ParseRow(row, 3)
		var rowErr *RowError
		if !errors.As(err, &rowErr) {
			t.Fatalf("expected *RowError, got %v", err)
		}
		if rowErr.Field != "contra_score" {
			t.Errorf("expected field contra_score, got %s", rowErr.Field)
		}
	})

	t.Run("BlankScoreDefaultsToZero", func(t *testing.T) {
		row := []string{"05/03/2024", "event-006", "FID-1", "", "  ", "", "", ""}

		signal, err := parser.ParseRow(row, 2)
		if err != nil {
			t.Fatalf("ParseRow failed: %v", err)
		}
		if signal.ContraScore != 0 {
			t.Errorf("expected ContraScore 0, got %d", signal.ContraScore)
		}
	})

	t.Run("ShortRow", func(t *testing.T) {
		row := []string{"05/03/2024", "event-007", "FID-1"}

		_, err := parser.ParseRow(row, 4)
		if err == nil {
			t.Fatal("expected error for short row")
		}

		var rowErr *RowError
		if !errors.As(err, &rowErr) {
			t.Fatalf("expected *RowError, got %T", err)
		}
		if rowErr.Field != domain.FieldRowException {
			t.Errorf("expected field %q, got %q", domain.FieldRowException, rowErr.Field)
		}
		if !strings.Contains(err.Error(), "index out of range") {
			t.Errorf("unexpected message: %v", err)
		}
	})

	t.Run("IndicatorsWithLineBreaks", func(t *testing.T) {
		row := []string{"05/03/2024", "event-008", "FID-1", "A01\nD15,A01", "-3", "", "", ""}

		signal, err := parser.ParseRow(row, 2)
		if err != nil {
			t.Fatalf("ParseRow failed: %v", err)
		}
		if signal.ContraIndicators["A01"] != 2 {
			t.Errorf("expected A01 count 2, got %d", signal.ContraIndicators["A01"])
		}
		if signal.ContraIndicators["D15"] != 1 {
			t.Errorf("expected D15 count 1, got %d", signal.ContraIndicators["D15"])
		}
	})

	t.Run("BlankIndicatorField", func(t *testing.T) {
		row := []string{"05/03/2024", "event-009", "FID-1", "  ", "0", "", "", ""}

		signal, err := parser.ParseRow(row, 2)
		if err != nil {
			t.Fatalf("ParseRow failed: %v", err)
		}
		if len(signal.ContraIndicators) != 0 {
			t.Errorf("expected no contra indicators, got %v", signal.ContraIndicators)
		}
	})
}

func TestNewParser(t *testing.T) {
	t.Run("UnknownTimezone", func(t *testing.T) {
		if _, err := NewParser("idp-001", "Mars/Olympus", "excel"); err == nil {
			t.Error("expected error for unknown timezone")
		}
	})

	t.Run("UnknownDialect", func(t *testing.T) {
		if _, err := NewParser("idp-001", "Europe/London", "fancy"); err == nil {
			t.Error("expected error for unknown dialect")
		}
	})

	t.Run("DefaultsApply", func(t *testing.T) {
		if _, err := NewParser("idp-001", "", ""); err != nil {
			t.Errorf("expected defaults to apply, got %v", err)
		}
	})
}

func TestReaderDialects(t *testing.T) {
	cases := []struct {
		dialect string
		input   string
	}{
		{"excel", "a,b,c"},
		{"tab", "a\tb\tc"},
		{"semicolon", "a;b;c"},
		{"pipe", "a|b|c"},
	}

	for _, tc := range cases {
		t.Run(tc.dialect, func(t *testing.T) {
			parser, err := NewParser("idp-001", "", tc.dialect)
			if err != nil {
				t.Fatalf("failed to create parser: %v", err)
			}

			row, err := parser.Reader(strings.NewReader(tc.input)).Read()
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if len(row) != 3 {
				t.Errorf("expected 3 fields, got %d", len(row))
			}
		})
	}
}

func TestReaderAllowsRaggedRows(t *testing.T) {
	parser, err := NewParser("idp-001", "", "")
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	reader := parser.Reader(strings.NewReader("a,b,c\nd,e\n"))

	if _, err := reader.Read(); err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	row, err := reader.Read()
	if err != nil {
		t.Fatalf("short row should not be a reader error: %v", err)
	}
	if len(row) != 2 {
		t.Errorf("expected 2 fields, got %d", len(row))
	}
}
