// Package replay implements the offline driver: it loads a
// historical tick CSV, feeds the engine tick-by-tick with a quiesce
// barrier between ticks so runs are deterministic, tracks per-fill equity
// and per-trade excursions, and writes the trade CSV and HTML reports.
package replay

import (
	"bufio"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"winter/internal/model"
	"winter/internal/xerrors"

	"github.com/yanun0323/logs"
)

// CSV columns, in order. Everything after size is carried by the feed but
// unused here.
const (
	colTime = iota
	colSymbol
	colMarketCenter
	colPrice
	colSize
	minColumns = colSize + 1
)

// timeLayouts are tried in order when parsing the time column; a value
// matching none of them gets a synthetic sequential timestamp instead.
var timeLayouts = []string{
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"15:04:05.000000",
	"15:04:05",
}

type parsedRow struct {
	tick  model.Tick
	ok    bool
	hasTS bool
}

// LoadCSV parses path into a timestamp-sorted tick slice. The header line
// is ignored; rows with an empty time, symbol, price, or size field, or a
// price/size that fails numeric parsing, are skipped (input
// errors). Parsing runs in parallel order-preserving batches; rows whose
// time column cannot be parsed receive a monotonically increasing
// synthetic timestamp in file order.
func LoadCSV(path string) ([]model.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "replay: open %s", path)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	first := true
	for scanner.Scan() {
		if first {
			first = false // header
			continue
		}
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.Wrapf(err, "replay: read %s", path)
	}
	if len(lines) == 0 {
		return nil, nil
	}

	rows := parseParallel(lines)

	// Synthetic timestamps keep file order for unparseable times: each one
	// lands strictly after the last parsed or synthesized value.
	ticks := make([]model.Tick, 0, len(rows))
	var lastTS int64
	skipped := 0
	for _, row := range rows {
		if !row.ok {
			skipped++
			continue
		}
		if !row.hasTS || row.tick.TimestampUS <= lastTS {
			row.tick.TimestampUS = lastTS + 1
		}
		lastTS = row.tick.TimestampUS
		ticks = append(ticks, row.tick)
	}
	if skipped > 0 {
		logs.Infof("replay: skipped %d unparseable rows out of %d", skipped, len(lines))
	}

	sort.SliceStable(ticks, func(i, j int) bool {
		return ticks[i].TimestampUS < ticks[j].TimestampUS
	})
	return ticks, nil
}

// parseParallel splits lines into per-core chunks, parses each chunk on
// its own goroutine, and stitches the results back in file order.
func parseParallel(lines []string) []parsedRow {
	workers := runtime.NumCPU()
	if workers > len(lines) {
		workers = len(lines)
	}
	if workers < 1 {
		workers = 1
	}
	chunkSize := (len(lines) + workers - 1) / workers

	rows := make([]parsedRow, len(lines))
	var wg sync.WaitGroup
	for start := 0; start < len(lines); start += chunkSize {
		end := start + chunkSize
		if end > len(lines) {
			end = len(lines)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				rows[i] = parseRow(lines[i])
			}
		}(start, end)
	}
	wg.Wait()
	return rows
}

func parseRow(line string) parsedRow {
	fields := strings.Split(line, ",")
	if len(fields) < minColumns {
		return parsedRow{}
	}

	timeStr := strings.TrimSpace(fields[colTime])
	symbol := strings.TrimSpace(fields[colSymbol])
	priceStr := strings.TrimSpace(fields[colPrice])
	sizeStr := strings.TrimSpace(fields[colSize])
	if timeStr == "" || symbol == "" || priceStr == "" || sizeStr == "" {
		return parsedRow{}
	}

	price, err := model.ParseDecimalField(priceStr)
	if err != nil || price <= 0 {
		return parsedRow{}
	}
	size, err := strconv.ParseInt(sizeStr, 10, 32)
	if err != nil || size < 0 {
		return parsedRow{}
	}

	row := parsedRow{
		tick: model.Tick{Symbol: symbol, Price: price, Volume: int32(size)},
		ok:   true,
	}
	if ts, ok := parseTime(timeStr); ok {
		row.tick.TimestampUS = ts
		row.hasTS = true
	}
	return row
}

func parseTime(s string) (int64, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMicro(), true
		}
	}
	// Feeds sometimes carry raw microseconds since epoch.
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return n, true
	}
	return 0, false
}
