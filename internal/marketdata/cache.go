package marketdata

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/domain"
)

const dateLayout = "2006-01-02"

// Cache is the per-(provider,symbol) incremental bar cache.
type Cache struct {
	db *database.DB
}

func NewCache(db *database.DB) (*Cache, error) {
	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		return nil, fmt.Errorf("migrate market cache: %w", err)
	}
	return c, nil
}

func (c *Cache) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS daily_bars (
			provider TEXT NOT NULL,
			symbol TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			open REAL, high REAL, low REAL, close REAL,
			volume REAL, amount REAL,
			is_suspended INTEGER NOT NULL DEFAULT 0,
			is_st INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (provider, symbol, trade_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_bars_symbol ON daily_bars(provider, symbol, trade_date)`,
		`CREATE TABLE IF NOT EXISTS intraday_bars (
			provider TEXT NOT NULL,
			symbol TEXT NOT NULL,
			interval TEXT NOT NULL,
			bar_time TEXT NOT NULL,
			open REAL, high REAL, low REAL, close REAL,
			volume REAL, amount REAL,
			PRIMARY KEY (provider, symbol, interval, bar_time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_intraday_bars_symbol ON intraday_bars(provider, symbol, interval, bar_time)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Coverage returns the min/max cached trade_date and row count for
// (provider, symbol). ok is false when nothing is cached.
func (c *Cache) Coverage(provider, symbol string) (min, max time.Time, count int, ok bool) {
	row := c.db.QueryRow(
		`SELECT MIN(trade_date), MAX(trade_date), COUNT(*) FROM daily_bars WHERE provider = ? AND symbol = ?`,
		provider, symbol,
	)
	var minS, maxS sql.NullString
	if err := row.Scan(&minS, &maxS, &count); err != nil || count == 0 {
		return time.Time{}, time.Time{}, 0, false
	}
	min, _ = time.Parse(dateLayout, minS.String)
	max, _ = time.Parse(dateLayout, maxS.String)
	return min, max, count, true
}

// LoadDailyBars returns cached bars in [start,end], sorted ascending.
func (c *Cache) LoadDailyBars(provider, symbol string, start, end time.Time) ([]domain.Bar, error) {
	rows, err := c.db.Query(
		`SELECT trade_date, open, high, low, close, volume, amount, is_suspended, is_st
		 FROM daily_bars WHERE provider = ? AND symbol = ? AND trade_date BETWEEN ? AND ?
		 ORDER BY trade_date ASC`,
		provider, symbol, start.Format(dateLayout), end.Format(dateLayout),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Bar
	for rows.Next() {
		var (
			dateS                                     string
			open, high, low, closeV, volume, amount   sql.NullFloat64
			isSuspended, isST                         int
		)
		if err := rows.Scan(&dateS, &open, &high, &low, &closeV, &volume, &amount, &isSuspended, &isST); err != nil {
			return nil, err
		}
		tradeDate, err := time.Parse(dateLayout, dateS)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Bar{
			TradeDate:   tradeDate,
			Symbol:      symbol,
			Open:        open.Float64,
			High:        high.Float64,
			Low:         low.Float64,
			Close:       closeV.Float64,
			Volume:      volume.Float64,
			Amount:      amount.Float64,
			IsSuspended: isSuspended != 0,
			IsST:        isST != 0,
		})
	}
	return out, rows.Err()
}

// UpsertDailyBars writes bars into the cache, replacing any existing row
// for the same (provider, symbol, trade_date).
func (c *Cache) UpsertDailyBars(provider, symbol string, bars []domain.Bar) error {
	for _, bar := range bars {
		_, err := c.db.Exec(
			`INSERT INTO daily_bars(provider, symbol, trade_date, open, high, low, close, volume, amount, is_suspended, is_st)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(provider, symbol, trade_date) DO UPDATE SET
				open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
				volume=excluded.volume, amount=excluded.amount,
				is_suspended=excluded.is_suspended, is_st=excluded.is_st`,
			provider, symbol, bar.TradeDate.Format(dateLayout),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.Amount,
			boolToInt(bar.IsSuspended), boolToInt(bar.IsST),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// IntradayCoverage mirrors Coverage for intraday bars.
func (c *Cache) IntradayCoverage(provider, symbol string, interval domain.IntradayInterval) (min, max time.Time, count int, ok bool) {
	row := c.db.QueryRow(
		`SELECT MIN(bar_time), MAX(bar_time), COUNT(*) FROM intraday_bars WHERE provider = ? AND symbol = ? AND interval = ?`,
		provider, symbol, string(interval),
	)
	var minS, maxS sql.NullString
	if err := row.Scan(&minS, &maxS, &count); err != nil || count == 0 {
		return time.Time{}, time.Time{}, 0, false
	}
	min, _ = time.Parse(time.RFC3339, minS.String)
	max, _ = time.Parse(time.RFC3339, maxS.String)
	return min, max, count, true
}

func (c *Cache) LoadIntradayBars(provider, symbol string, interval domain.IntradayInterval, start, end time.Time) ([]domain.IntradayBar, error) {
	rows, err := c.db.Query(
		`SELECT bar_time, open, high, low, close, volume, amount FROM intraday_bars
		 WHERE provider = ? AND symbol = ? AND interval = ? AND bar_time BETWEEN ? AND ?
		 ORDER BY bar_time ASC`,
		provider, symbol, string(interval), start.Format(time.RFC3339), end.Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.IntradayBar
	for rows.Next() {
		var (
			barTimeS                                string
			open, high, low, closeV, volume, amount sql.NullFloat64
		)
		if err := rows.Scan(&barTimeS, &open, &high, &low, &closeV, &volume, &amount); err != nil {
			return nil, err
		}
		barTime, err := time.Parse(time.RFC3339, barTimeS)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.IntradayBar{
			BarTime:  barTime,
			Symbol:   symbol,
			Interval: interval,
			Open:     open.Float64, High: high.Float64, Low: low.Float64, Close: closeV.Float64,
			Volume: volume.Float64, Amount: amount.Float64,
		})
	}
	return out, rows.Err()
}

func (c *Cache) UpsertIntradayBars(provider, symbol string, interval domain.IntradayInterval, bars []domain.IntradayBar) error {
	for _, bar := range bars {
		_, err := c.db.Exec(
			`INSERT INTO intraday_bars(provider, symbol, interval, bar_time, open, high, low, close, volume, amount)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(provider, symbol, interval, bar_time) DO UPDATE SET
				open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
				volume=excluded.volume, amount=excluded.amount`,
			provider, symbol, string(interval), bar.BarTime.Format(time.RFC3339),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.Amount,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// dateRange is an inclusive [Start,End] span of calendar dates.
type dateRange struct {
	Start, End time.Time
}

// mergeRanges sorts and merges ranges whose gap is at most one day,
// matching CompositeDataProvider._merge_ranges.
func mergeRanges(ranges []dateRange) []dateRange {
	var normalized []dateRange
	for _, r := range ranges {
		if !r.Start.After(r.End) {
			normalized = append(normalized, r)
		}
	}
	if len(normalized) == 0 {
		return nil
	}
	sort.Slice(normalized, func(i, j int) bool {
		if !normalized[i].Start.Equal(normalized[j].Start) {
			return normalized[i].Start.Before(normalized[j].Start)
		}
		return normalized[i].End.Before(normalized[j].End)
	})

	merged := []dateRange{normalized[0]}
	for _, r := range normalized[1:] {
		last := &merged[len(merged)-1]
		if !r.Start.After(last.End.AddDate(0, 0, 1)) {
			if r.End.After(last.End) {
				last.End = r.End
			}
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

// missingRangesFromExpectedDates scans the sorted expected trade dates and
// emits contiguous runs absent from cachedDates.
func missingRangesFromExpectedDates(expectedDates []time.Time, cachedDates map[string]bool) []dateRange {
	var ranges []dateRange
	var startMissing, endMissing *time.Time
	for _, d := range expectedDates {
		if cachedDates[d.Format(dateLayout)] {
			if startMissing != nil {
				ranges = append(ranges, dateRange{Start: *startMissing, End: *endMissing})
			}
			startMissing, endMissing = nil, nil
			continue
		}
		if startMissing == nil {
			s := d
			startMissing = &s
		}
		e := d
		endMissing = &e
	}
	if startMissing != nil {
		ranges = append(ranges, dateRange{Start: *startMissing, End: *endMissing})
	}
	return ranges
}
