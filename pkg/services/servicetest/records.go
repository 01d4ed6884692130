// Package servicetest provides deterministic sales data for tests.
package servicetest

import (
	"math/rand"
	"time"

	"kicks-forecast-api/pkg/models"
)

var (
	Retailers    = []string{"Amazon", "Foot Locker", "Kohl's", "Sports Direct", "Walmart", "West Gear"}
	Regions      = []string{"Midwest", "Northeast", "South", "Southeast", "West"}
	Products     = []string{"Men's Apparel", "Men's Athletic Footwear", "Men's Street Footwear", "Women's Apparel", "Women's Athletic Footwear", "Women's Street Footwear"}
	SalesMethods = []string{"In-store", "Online", "Outlet"}
)

// Records generates n sales records from seed. Every category value appears at
// least once, prices and units are integers, and Total Sales is exactly price x units.
func Records(n int, seed int64) []models.HistoricalRecord {
	rng := rand.New(rand.NewSource(seed))
	out := make([]models.HistoricalRecord, n)
	for i := range out {
		product := rng.Intn(len(Products))
		if i < len(Products) {
			product = i
		}
		method := rng.Intn(len(SalesMethods))
		if i < len(SalesMethods) {
			method = i
		}
		month := 1 + rng.Intn(12)
		price := float64(30 + rng.Intn(40))

		// 製品と販売方法で水準が決まり、単価が高いほど販売数が減る
		units := 150 + 35*float64(product) - 40*float64(method) - 1.5*price + float64(rng.Intn(25))
		if units < 1 {
			units = 1
		}
		units = float64(int(units))

		out[i] = models.HistoricalRecord{
			Retailer:     Retailers[i%len(Retailers)],
			Region:       Regions[(i/len(Retailers))%len(Regions)],
			Product:      Products[product],
			SalesMethod:  SalesMethods[method],
			PricePerUnit: price,
			Month:        month,
			Quarter:      (month-1)/3 + 1,
			UnitsSold:    units,
			TotalSales:   price * units,
			InvoiceDate:  time.Date(2021, time.Month(month), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC),
		}
	}
	return out
}
