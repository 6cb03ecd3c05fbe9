package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
)

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"}

// LoadCSVFile 从文件加载收盘价历史
func LoadCSVFile(path string) (*MemoryProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCSV(f)
}

// LoadCSV 读取 symbol,date,close 三列（首行为表头）的收盘价历史
func LoadCSV(r io.Reader) (*MemoryProvider, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	p := NewMemoryProvider()
	line := 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		line++
		if line == 1 && strings.EqualFold(rec[0], "symbol") {
			continue
		}
		bar, err := parseBar(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrInvalidInput, line, err)
		}
		p.AddBars(strings.TrimSpace(rec[0]), bar)
	}
	return p, nil
}

func parseBar(rec []string) (Bar, error) {
	ts, err := parseDate(strings.TrimSpace(rec[1]))
	if err != nil {
		return Bar{}, err
	}
	d, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
	if err != nil {
		return Bar{}, fmt.Errorf("close %q: %v", rec[2], err)
	}
	if !d.IsPositive() {
		return Bar{}, fmt.Errorf("close must be positive, got %s", d)
	}
	return Bar{Time: ts, Close: d.InexactFloat64()}, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
