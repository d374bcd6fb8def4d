package marketdata

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

// csvTimeLayouts are tried in order when parsing the timestamp column.
// Plain integers are treated as Unix seconds.
var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCSV reads OHLCV bars from a CSV stream. The expected header is
// timestamp,open,high,low,close,volume with optional trailing bid,ask
// columns. When bid/ask are absent they are synthesized from the close so
// downstream spread-based liquidity scoring still has something to work with.
func ParseCSV(r io.Reader) ([]domain.Bar, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.ReuseRecord = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) < 6 {
		return nil, &domain.DatasetError{BarIndex: 0, Reason: "CSV header needs at least 6 columns (timestamp,open,high,low,close,volume)"}
	}
	hasQuotes := len(header) >= 8

	var bars []domain.Bar
	line := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		line++

		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return nil, &domain.DatasetError{BarIndex: line - 1, Reason: err.Error()}
		}

		var fields [5]float64
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				return nil, &domain.DatasetError{BarIndex: line - 1, Reason: fmt.Sprintf("column %q: %v", header[i+1], err)}
			}
			fields[i] = v
		}

		bar := domain.Bar{
			Timestamp: ts,
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
		}

		if hasQuotes && len(rec) >= 8 {
			bid, err := strconv.ParseFloat(strings.TrimSpace(rec[6]), 64)
			if err != nil {
				return nil, &domain.DatasetError{BarIndex: line - 1, Reason: fmt.Sprintf("column bid: %v", err)}
			}
			ask, err := strconv.ParseFloat(strings.TrimSpace(rec[7]), 64)
			if err != nil {
				return nil, &domain.DatasetError{BarIndex: line - 1, Reason: fmt.Sprintf("column ask: %v", err)}
			}
			bar.Bid, bar.Ask = bid, ask
		} else {
			bar.Bid = bar.Close
			bar.Ask = bar.Close
		}

		if len(bars) > 0 && !bar.Timestamp.After(bars[len(bars)-1].Timestamp) {
			return nil, &domain.DatasetError{BarIndex: line - 1, Reason: "timestamps must be strictly increasing"}
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}
