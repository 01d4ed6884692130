package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"kicks-forecast-api/pkg/models"

	"github.com/xuri/excelize/v2"
)

// MonthNames メタデータに載せる月名（1月始まり）
var MonthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

var invoiceDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"1/2/2006",
	"01/02/2006",
	"2006/01/02",
	"2006/1/2",
}

// SalesDataset 読み込んだ販売実績
type SalesDataset struct {
	Source      string
	Records     []models.HistoricalRecord
	SkippedRows int
}

// LoadSalesDataset reads historical sales from a .csv or .xlsx file.
// Rows that cannot be parsed are skipped and counted.
func LoadSalesDataset(path string) (*SalesDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ReadSalesDataset(f, path)
}

// ReadSalesDataset はアップロードされたファイルなど任意のReaderから読み込む。
// 形式は name の拡張子で判定する
func ReadSalesDataset(r io.Reader, name string) (*SalesDataset, error) {
	var rows [][]string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("open xlsx: %w", err)
		}
		defer f.Close()
		rows, err = f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("read xlsx rows: %w", err)
		}
	case ".csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		var err error
		rows, err = cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported dataset format: %s (use .csv or .xlsx)", name)
	}

	ds, err := parseSalesRows(rows)
	if err != nil {
		return nil, err
	}
	ds.Source = name
	return ds, nil
}

// salesColumns ヘッダー行から検出した列インデックス
type salesColumns struct {
	retailer, region, product, salesMethod int
	price, units, total                    int
	month, quarter, invoiceDate            int
}

func detectSalesColumns(header []string) (salesColumns, error) {
	h := normalizeHeader(header)
	cols := salesColumns{
		retailer:    findIndex(h, []string{"retailer"}),
		region:      findIndex(h, []string{"region"}),
		product:     findIndex(h, []string{"product"}),
		salesMethod: findIndex(h, []string{"sales method", "sales_method"}),
		price:       findIndex(h, []string{"price per unit", "price_per_unit"}),
		units:       findIndex(h, []string{"units sold", "units_sold"}),
		total:       findIndex(h, []string{"total sales", "total_sales"}),
		month:       findIndex(h, []string{"month"}),
		quarter:     findIndex(h, []string{"quarter"}),
		invoiceDate: findIndex(h, []string{"invoice date", "invoice_date", "date"}),
	}

	var missing []string
	required := map[string]int{
		"Retailer": cols.retailer, "Region": cols.region, "Product": cols.product,
		"Sales Method": cols.salesMethod, "Price per Unit": cols.price,
		"Units Sold": cols.units, "Total Sales": cols.total,
	}
	for _, name := range []string{"Retailer", "Region", "Product", "Sales Method", "Price per Unit", "Units Sold", "Total Sales"} {
		if required[name] == -1 {
			missing = append(missing, name)
		}
	}
	// 月・四半期の列が無い場合は請求日から導出する
	if (cols.month == -1 || cols.quarter == -1) && cols.invoiceDate == -1 {
		missing = append(missing, "Month/Quarter or Invoice Date")
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("required columns not found: %s (header: %v)", strings.Join(missing, ", "), header)
	}
	return cols, nil
}

func parseSalesRows(rows [][]string) (*SalesDataset, error) {
	if len(rows) < 2 {
		return nil, errors.New("dataset needs a header row and at least one data row")
	}
	cols, err := detectSalesColumns(rows[0])
	if err != nil {
		return nil, err
	}

	ds := &SalesDataset{}
	for _, row := range rows[1:] {
		rec, ok := parseSalesRow(row, cols)
		if !ok {
			ds.SkippedRows++
			continue
		}
		ds.Records = append(ds.Records, rec)
	}
	if len(ds.Records) == 0 {
		return nil, errors.New("dataset has no valid rows")
	}
	return ds, nil
}

func parseSalesRow(row []string, cols salesColumns) (models.HistoricalRecord, bool) {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rec := models.HistoricalRecord{
		Retailer:    cell(cols.retailer),
		Region:      cell(cols.region),
		Product:     cell(cols.product),
		SalesMethod: cell(cols.salesMethod),
	}
	if rec.Retailer == "" || rec.Region == "" || rec.Product == "" || rec.SalesMethod == "" {
		return rec, false
	}

	var ok bool
	if rec.PricePerUnit, ok = parseAmount(cell(cols.price)); !ok || rec.PricePerUnit <= 0 {
		return rec, false
	}
	if rec.UnitsSold, ok = parseAmount(cell(cols.units)); !ok || rec.UnitsSold < 0 {
		return rec, false
	}
	if rec.TotalSales, ok = parseAmount(cell(cols.total)); !ok || rec.TotalSales < 0 {
		return rec, false
	}

	if d := cell(cols.invoiceDate); d != "" {
		if t, ok := parseAnyDate(d, invoiceDateLayouts); ok {
			rec.InvoiceDate = t
		}
	}

	rec.Month = parseMonth(cell(cols.month))
	if rec.Month == 0 && !rec.InvoiceDate.IsZero() {
		rec.Month = int(rec.InvoiceDate.Month())
	}
	rec.Quarter = parseQuarter(cell(cols.quarter))
	if rec.Quarter == 0 && rec.Month != 0 {
		rec.Quarter = (rec.Month-1)/3 + 1
	}
	if rec.Month < 1 || rec.Month > 12 || rec.Quarter < 1 || rec.Quarter > 4 {
		return rec, false
	}
	return rec, true
}

// parseAmount は "$1,200.50" のような表記も数値として読む
func parseAmount(s string) (float64, bool) {
	s = filterNumeric(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseMonth accepts 1-12 or an English month name; 0 means absent or invalid.
func parseMonth(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= 12 {
			return n
		}
		return 0
	}
	for i, name := range MonthNames {
		if strings.EqualFold(name, s) || strings.EqualFold(name[:3], s) {
			return i + 1
		}
	}
	return 0
}

// parseQuarter は "2" や "Q2" を読む
func parseQuarter(s string) int {
	s = strings.TrimPrefix(strings.ToUpper(s), "Q")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 4 {
		return 0
	}
	return n
}

// Helpers shared with the CSV readers.

func parseAnyDate(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), true
		}
	}
	// try to split date part if time included
	if i := strings.IndexAny(s, " T"); i > 0 {
		part := s[:i]
		for _, layout := range layouts {
			if t, err := time.Parse(layout, part); err == nil {
				return day(t), true
			}
		}
	}
	return time.Time{}, false
}

func normalizeHeader(hdr []string) []string {
	out := make([]string, len(hdr))
	for i, v := range hdr {
		// Remove UTF-8 BOM if present, then trim and lowercase
		v = strings.TrimPrefix(v, "\ufeff")
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func findIndex(hdr []string, candidates []string) int {
	for i, v := range hdr {
		for _, c := range candidates {
			if v == c {
				return i
			}
		}
	}
	return -1
}

func day(t time.Time) time.Time { return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC) }

// filterNumeric keeps digits, dot, and minus to parse numbers like "$1,200" -> "1200".
func filterNumeric(s string) string {
	b := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b = append(b, r)
		}
	}
	return string(b)
}
