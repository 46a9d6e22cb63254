package history

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CSVProvider reads <SYMBOL>.csv and portfolio_<id>.csv from Dir. A file has
// a header naming a "return" column, or a "close"/"equity" column whose
// levels are converted to returns. Rows are oldest first. "/" in symbols
// maps to "_" in file names.
type CSVProvider struct {
	Dir string
}

func (p CSVProvider) PortfolioReturns(ctx context.Context, portfolioID string, days int) ([]float64, error) {
	return p.load(ctx, "portfolio_"+fileKey(portfolioID), days)
}

func (p CSVProvider) SymbolReturns(ctx context.Context, symbols []string, days int) (map[string][]float64, error) {
	out := make(map[string][]float64, len(symbols))
	for _, s := range symbols {
		r, err := p.load(ctx, fileKey(s), days)
		if err != nil {
			return nil, err
		}
		if len(r) > 0 {
			out[s] = r
		}
	}
	return out, nil
}

func fileKey(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(strings.TrimSpace(s))
}

func (p CSVProvider) load(ctx context.Context, key string, days int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(p.Dir, key+".csv")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []float64{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := ReadReturnsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("history: %s: %w", path, err)
	}
	return tail(r, days), nil
}

// ReadReturnsCSV parses a return or level series.
func ReadReturnsCSV(rd io.Reader) ([]float64, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return []float64{}, nil
	}
	if err != nil {
		return nil, err
	}

	col, levels := -1, false
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "return", "returns":
			col, levels = i, false
		case "close", "equity", "price":
			if col < 0 {
				col, levels = i, true
			}
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("no return, close or equity column in header %v", header)
	}

	var series []float64
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if col >= len(rec) || strings.TrimSpace(rec[col]) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		series = append(series, v)
	}

	if levels {
		return pctChange(series), nil
	}
	if series == nil {
		series = []float64{}
	}
	return series, nil
}
