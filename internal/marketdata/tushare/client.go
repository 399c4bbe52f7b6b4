// Package tushare implements marketdata.Provider against the Tushare Pro
// HTTP API (https://api.tushare.pro), a China A-share market and
// fundamental data source. The request shape here (single POST endpoint,
// api_name/token/params/fields envelope) follows Tushare Pro's documented
// wire format.
package tushare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/marketdata"
	"github.com/rs/zerolog"
)

const defaultBaseURL = "http://api.tushare.pro"

// Client is a marketdata.Provider backed by the Tushare Pro API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(token string, log zerolog.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
		log:     log.With().Str("provider", "tushare").Logger(),
	}
}

func (c *Client) Name() string { return "tushare" }

type request struct {
	APIName string         `json:"api_name"`
	Token   string         `json:"token"`
	Params  map[string]any `json:"params"`
	Fields  string         `json:"fields"`
}

type response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string        `json:"fields"`
		Items  [][]interface{} `json:"items"`
	} `json:"data"`
}

// call invokes one Tushare Pro API and returns each row as a
// field-name-keyed map.
func (c *Client) call(ctx context.Context, apiName string, params map[string]any, fields string) ([]map[string]any, error) {
	body, err := json.Marshal(request{APIName: apiName, Token: c.token, Params: params, Fields: fields})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tushare %s: %w", apiName, err)
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tushare %s: decode response: %w", apiName, err)
	}
	if out.Code != 0 {
		return nil, fmt.Errorf("tushare %s: %s", apiName, out.Msg)
	}

	rows := make([]map[string]any, 0, len(out.Data.Items))
	for _, item := range out.Data.Items {
		row := make(map[string]any, len(out.Data.Fields))
		for i, name := range out.Data.Fields {
			if i < len(item) {
				row[name] = item[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func tushareDate(t time.Time) string { return t.Format("20060102") }

func parseTushareDate(s string) (time.Time, error) {
	return time.Parse("20060102", s)
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// GetDailyBars fetches unadjusted bars from the `daily` endpoint (no
// `adj_factor` join), converting volume from lots to shares and amount
// from thousands of CNY to CNY.
func (c *Client) GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	rows, err := c.call(ctx, "daily", map[string]any{
		"ts_code": symbol, "start_date": tushareDate(start), "end_date": tushareDate(end),
	}, "ts_code,trade_date,open,high,low,close,vol,amount")
	if err != nil {
		return nil, err
	}
	bars := make([]domain.Bar, 0, len(rows))
	for _, r := range rows {
		tradeDate, err := parseTushareDate(toString(r["trade_date"]))
		if err != nil {
			continue
		}
		bars = append(bars, domain.Bar{
			TradeDate: tradeDate, Symbol: symbol,
			Open: toFloat(r["open"]), High: toFloat(r["high"]), Low: toFloat(r["low"]), Close: toFloat(r["close"]),
			Volume: toFloat(r["vol"]) * 100, Amount: toFloat(r["amount"]) * 1000,
		})
	}
	sortBarsAscending(bars)
	return bars, nil
}

func sortBarsAscending(bars []domain.Bar) {
	for i := 1; i < len(bars); i++ {
		for j := i; j > 0 && bars[j].TradeDate.Before(bars[j-1].TradeDate); j-- {
			bars[j], bars[j-1] = bars[j-1], bars[j]
		}
	}
}

// GetTradeCalendar ports the `trade_cal` endpoint.
func (c *Client) GetTradeCalendar(ctx context.Context, start, end time.Time) ([]domain.TradeCalendarDay, error) {
	rows, err := c.call(ctx, "trade_cal", map[string]any{
		"exchange": "SSE", "start_date": tushareDate(start), "end_date": tushareDate(end),
	}, "cal_date,is_open")
	if err != nil {
		return nil, err
	}
	days := make([]domain.TradeCalendarDay, 0, len(rows))
	for _, r := range rows {
		d, err := parseTushareDate(toString(r["cal_date"]))
		if err != nil {
			continue
		}
		days = append(days, domain.TradeCalendarDay{TradeDate: d, IsOpen: toFloat(r["is_open"]) == 1})
	}
	return days, nil
}

// GetSecurityStatus combines `stock_basic` (ST flag when the current name
// contains "ST") and `suspend_d` into the single ST/suspended verdict risk
// rules consume.
func (c *Client) GetSecurityStatus(ctx context.Context, symbol string) (domain.SecurityStatus, error) {
	rows, err := c.call(ctx, "stock_basic", map[string]any{"ts_code": symbol}, "ts_code,name")
	if err != nil {
		return domain.SecurityStatus{}, err
	}
	status := domain.SecurityStatus{Symbol: symbol}
	if len(rows) > 0 {
		name := toString(rows[0]["name"])
		status.IsST = strings.Contains(strings.ToUpper(name), "ST")
	}

	suspend, err := c.call(ctx, "suspend_d", map[string]any{"ts_code": symbol, "suspend_type": "S"}, "ts_code,trade_date")
	if err == nil && len(suspend) > 0 {
		status.IsSuspended = true
	}
	return status, nil
}

// GetIntradayBars is not offered by the free Tushare Pro tier this
// provider targets.
func (c *Client) GetIntradayBars(ctx context.Context, symbol string, start, end time.Time, interval domain.IntradayInterval) ([]domain.IntradayBar, error) {
	return nil, marketdata.ErrUnsupported
}

// GetFundamentalSnapshot ports the `fina_indicator` point-in-time pull
// fundamental.Service enriches bars against.
func (c *Client) GetFundamentalSnapshot(ctx context.Context, symbol string, asOf time.Time) (map[string]any, error) {
	rows, err := c.call(ctx, "fina_indicator", map[string]any{
		"ts_code": symbol, "end_date": tushareDate(asOf),
	}, "ts_code,ann_date,roe,grossprofit_margin,debt_to_assets,or_yoy")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, marketdata.ErrUnsupported
	}
	return rows[0], nil
}

// GetCorporateEventSnapshot is not exposed by this provider; corporate
// event ingestion runs through internal/event's source registry instead.
func (c *Client) GetCorporateEventSnapshot(ctx context.Context, symbol string, asOf time.Time, lookbackDays int) (map[string]any, error) {
	return nil, marketdata.ErrUnsupported
}

// GetMarketStyleSnapshot ports the `index_dailybasic` market-style pull.
func (c *Client) GetMarketStyleSnapshot(ctx context.Context, asOf time.Time, lookbackDays int) (map[string]any, error) {
	rows, err := c.call(ctx, "index_dailybasic", map[string]any{
		"ts_code": "000001.SH", "trade_date": tushareDate(asOf),
	}, "ts_code,trade_date,turnover_rate,pe,pb")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, marketdata.ErrUnsupported
	}
	return rows[0], nil
}

var _ marketdata.Provider = (*Client)(nil)
