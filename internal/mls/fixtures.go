package mls

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

var (
	fixtureCities = []string{"Seattle", "Bellevue", "Redmond", "Tacoma", "Spokane"}
	fixtureTypes  = []string{"Residential", "Condominium", "Townhouse"}
)

// FixtureSource serves a fixed set of sample listings instead of calling the
// MLS. It backs dry-run mode and is never used unless explicitly enabled.
type FixtureSource struct {
	// Base anchors every generated timestamp so output is reproducible.
	Base  time.Time
	Count int
}

// NewFixtureSource returns a source of 20 listings anchored at 2024-01-01 UTC.
func NewFixtureSource() *FixtureSource {
	return &FixtureSource{
		Base:  time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC),
		Count: 20,
	}
}

// FetchAll returns the sample listings modified after since, newest first.
func (f *FixtureSource) FetchAll(ctx context.Context, since *time.Time) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var listings []Listing
	for i := 0; i < f.Count; i++ {
		modified := f.Base.Add(-time.Duration(i) * time.Hour)
		if since != nil && !modified.After(*since) {
			continue
		}

		raw, err := json.Marshal(fixtureRecord(i, f.Base, modified))
		if err != nil {
			return nil, fmt.Errorf("failed to build fixture listing %d: %w", i, err)
		}
		listing, err := DecodeListing(raw)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}

	log.Printf("MLS client: DRY RUN, serving %d fixture listings", len(listings))
	return listings, nil
}

func fixtureRecord(i int, base, modified time.Time) map[string]any {
	city := fixtureCities[i%len(fixtureCities)]
	propertyType := fixtureTypes[i%len(fixtureTypes)]
	agent := i % 5
	id := fmt.Sprintf("NWMLS-%d", 10000+i)

	return map[string]any{
		"ListingId":             id,
		"ListingKey":            id,
		"PublicRemarks":         fmt.Sprintf("Beautiful %s in %s. Features modern amenities, spacious layout, and great location.", propertyType, city),
		"ListPrice":             400000 + i*50000,
		"ListingContractDate":   base.AddDate(0, 0, -i).Format("2006-01-02"),
		"ModificationTimestamp": modified.Format(watermarkLayout),
		"UnparsedAddress":       fmt.Sprintf("%d Main Street", 1000+i),
		"City":                  city,
		"StateOrProvince":       "WA",
		"PostalCode":            fmt.Sprintf("981%02d", i),
		"Latitude":              47.6062 + float64(i)*0.01,
		"Longitude":             -122.3321 + float64(i)*0.01,
		"PropertyType":          propertyType,
		"StandardStatus":        "Active",
		"BedroomsTotal":         2 + i%4,
		"BathroomsTotalInteger": 1 + i%3,
		"LivingArea":            1200 + i*100,
		"LotSizeSquareFeet":     3000 + i*500,
		"YearBuilt":             1990 + i%30,
		"Media": []map[string]string{
			{"MediaURL": fmt.Sprintf("https://images.example.com/listings/%s/front.jpg", id), "ShortDescription": "Front view"},
		},
		"InteriorFeatures":     []string{"Hardwood Floors", "Granite Counters", "Stainless Appliances"},
		"ListAgentMlsId":       fmt.Sprintf("AGENT-%d", 100+agent),
		"ListAgentFullName":    fmt.Sprintf("Agent %d", agent),
		"ListAgentEmail":       fmt.Sprintf("agent%d@example.com", agent),
		"ListAgentDirectPhone": fmt.Sprintf("(555) %03d-0000", 100+agent),
	}
}
