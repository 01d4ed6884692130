package services

import (
	"sort"

	"kicks-forecast-api/pkg/models"
)

// AnalyzeSalesDataset は学習前の販売実績を検証する。
// 売上の恒等式、特徴量と販売数の相関、カテゴリ組み合わせの網羅率、カテゴリ別の売上統計を返す
func AnalyzeSalesDataset(ds *SalesDataset) models.DatasetReport {
	records := ds.Records
	violations := CountIdentityViolations(records)

	report := models.DatasetReport{
		Source:             ds.Source,
		Records:            len(records),
		SkippedRows:        ds.SkippedRows,
		IdentityMatches:    len(records) - violations,
		IdentityViolations: violations,
		Correlations:       featureCorrelations(records),
		Coverage:           combinationCoverage(records),
		BySalesMethod:      groupStats(records, func(r models.HistoricalRecord) string { return r.SalesMethod }),
		ByRetailer:         groupStats(records, func(r models.HistoricalRecord) string { return r.Retailer }),
		ByRegion:           groupStats(records, func(r models.HistoricalRecord) string { return r.Region }),
	}
	if len(records) > 0 {
		report.Metadata = *BuildMetadata(records)
	}
	return report
}

func featureCorrelations(records []models.HistoricalRecord) []models.FeatureCorrelation {
	units := make([]float64, len(records))
	price := make([]float64, len(records))
	month := make([]float64, len(records))
	quarter := make([]float64, len(records))
	for i, r := range records {
		units[i] = r.UnitsSold
		price[i] = r.PricePerUnit
		month[i] = float64(r.Month)
		quarter[i] = float64(r.Quarter)
	}

	out := make([]models.FeatureCorrelation, 0, 3)
	for _, f := range []struct {
		name   string
		values []float64
	}{
		{FeaturePricePerUnit, price},
		{FeatureMonth, month},
		{FeatureQuarter, quarter},
	} {
		c := models.FeatureCorrelation{Feature: f.name, Interpretation: "undefined"}
		if r, ok := pearson(f.values, units); ok {
			c.Coefficient = r
			c.Interpretation = interpretCorrelation(r)
		}
		out = append(out, c)
	}
	return out
}

func combinationCoverage(records []models.HistoricalRecord) models.CombinationCoverage {
	type combo struct{ retailer, region, product, method string }
	counts := make(map[combo]int)
	retailers := make(map[string]struct{})
	regions := make(map[string]struct{})
	products := make(map[string]struct{})
	methods := make(map[string]struct{})
	for _, r := range records {
		counts[combo{r.Retailer, r.Region, r.Product, r.SalesMethod}]++
		retailers[r.Retailer] = struct{}{}
		regions[r.Region] = struct{}{}
		products[r.Product] = struct{}{}
		methods[r.SalesMethod] = struct{}{}
	}

	cov := models.CombinationCoverage{
		Observed:    len(counts),
		Theoretical: len(retailers) * len(regions) * len(products) * len(methods),
	}
	cov.Missing = cov.Theoretical - cov.Observed
	if cov.Theoretical > 0 {
		cov.CoveragePct = 100 * float64(cov.Observed) / float64(cov.Theoretical)
	}
	for _, n := range counts {
		if n < 10 {
			cov.UnderTen++
		}
		if n < 5 {
			cov.UnderFive++
		}
	}
	return cov
}

// groupStats はグループ名順に Total Sales の統計を返す
func groupStats(records []models.HistoricalRecord, key func(models.HistoricalRecord) string) []models.GroupStats {
	groups := make(map[string][]float64)
	for _, r := range records {
		k := key(r)
		groups[k] = append(groups[k], r.TotalSales)
	}
	names := make([]string, 0, len(groups))
	for k := range groups {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]models.GroupStats, 0, len(names))
	for _, name := range names {
		values := groups[name]
		out = append(out, models.GroupStats{
			Group:  name,
			Count:  len(values),
			Mean:   calculateMean(values),
			Median: calculateMedian(values),
			StdDev: sampleStdDev(values),
		})
	}
	return out
}
