package portfolio

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Ledger header names.
const (
	ColumnSymbol   = "Symbol"
	ColumnQuantity = "Quantity"
	ColumnAvgCost  = "Average Cost"
)

// ReadLedger loads holdings from a CSV ledger. It never fails: a missing
// or unreadable file yields an empty snapshot, and malformed rows are
// skipped. Aggregates are zero until the snapshot is enriched.
func ReadLedger(path string) Snapshot {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("path", path).Msg("Portfolio ledger not found")
		} else {
			log.Error().Err(err).Str("path", path).Msg("Failed to open portfolio ledger")
		}
		return emptySnapshot()
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			log.Error().Err(cerr).Str("path", path).Msg("Failed to close portfolio ledger")
		}
	}()

	holdings, err := parseLedger(f)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to read portfolio ledger")
		return emptySnapshot()
	}

	snap := emptySnapshot()
	snap.Holdings = holdings
	return snap
}

// LedgerFile is a ledger path that can be re-read on every turn.
type LedgerFile string

// Read loads the ledger. The context is unused; reads are local.
func (f LedgerFile) Read(_ context.Context) Snapshot {
	return ReadLedger(string(f))
}

func parseLedger(r io.Reader) ([]Holding, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []Holding{}, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		columns[name] = i
	}

	holdings := []Holding{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				log.Warn().Err(err).Int("line", line).Msg("Skipping malformed ledger row")
				continue
			}
			return nil, err
		}

		symbol := strings.ToUpper(strings.TrimSpace(field(record, columns, ColumnSymbol)))
		if symbol == "" {
			continue
		}

		h, err := parseHolding(symbol, record, columns)
		if err != nil {
			log.Warn().Err(err).Int("line", line).Str("symbol", symbol).Msg("Skipping malformed ledger row")
			continue
		}
		holdings = append(holdings, h)
	}
	return holdings, nil
}

func parseHolding(symbol string, record []string, columns map[string]int) (Holding, error) {
	qty, err := parseNumber(record, columns, ColumnQuantity)
	if err != nil {
		return Holding{}, err
	}
	if qty < 0 {
		return Holding{}, fmt.Errorf("negative quantity %v", qty)
	}

	cost, err := parseNumber(record, columns, ColumnAvgCost)
	if err != nil {
		return Holding{}, err
	}

	return Holding{Symbol: symbol, Quantity: qty, AvgCost: cost}, nil
}

func parseNumber(record []string, columns map[string]int, column string) (float64, error) {
	if _, ok := columns[column]; !ok {
		return 0, fmt.Errorf("missing column %q", column)
	}
	raw := strings.TrimSpace(field(record, columns, column))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", column, raw, err)
	}
	return v, nil
}

func field(record []string, columns map[string]int, column string) string {
	i, ok := columns[column]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}
