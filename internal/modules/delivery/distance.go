package delivery

import (
	"math"
	"sort"
	"strings"

	"github.com/sokoline/sokoline-backend/internal/modules/geo"
)

// weightBracketKg is the parcel size a single cost multiple covers.
const weightBracketKg = 5.0

// defaultDistanceKm is used when neither coordinates nor a known area
// keyword are available.
const defaultDistanceKm = 10.0

// areaDistances maps Nairobi area keywords to a rough distance in km from
// the CBD, used when an address has no coordinates.
var areaDistances = map[string]float64{
	"cbd":        2,
	"westlands":  4,
	"kilimani":   4,
	"parklands":  4,
	"lavington":  7,
	"south b":    5,
	"south c":    7,
	"langata":    10,
	"karen":      17,
	"kasarani":   12,
	"embakasi":   14,
	"ruaka":      14,
	"kikuyu":     20,
	"ruiru":      25,
	"kitengela":  30,
	"athi river": 30,
	"thika":      42,
	"machakos":   64,
	"nakuru":     160,
	"mombasa":    485,
	"kisumu":     345,
	"eldoret":    310,
}

// areaKeywords fixes the match order; map iteration would make multi-keyword
// addresses flap between estimates.
var areaKeywords = func() []string {
	ks := make([]string, 0, len(areaDistances))
	for k := range areaDistances {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}()

// EstimateDistanceKm prefers the haversine distance between the two points.
// When either end has no coordinates it falls back to an area keyword match
// on the dropoff address, then to defaultDistanceKm. Kenyan addresses name
// the area last ("Thika Road, Kasarani"), so the rightmost matching keyword
// wins when several are present.
func EstimateDistanceKm(from, to *geo.Point, dropoffAddress string) float64 {
	if from != nil && to != nil {
		return geo.DistanceKm(*from, *to)
	}
	addr := strings.ToLower(dropoffAddress)
	bestPos := -1
	km := defaultDistanceKm
	for _, keyword := range areaKeywords {
		if pos := strings.LastIndex(addr, keyword); pos > bestPos {
			bestPos = pos
			km = areaDistances[keyword]
		}
	}
	return km
}

// Cost prices a delivery: base plus per-km, multiplied per started 5 kg
// weight bracket.
func Cost(p *Provider, distanceKm, weightKg float64) float64 {
	brackets := math.Ceil(weightKg / weightBracketKg)
	if brackets < 1 {
		brackets = 1
	}
	return round2((p.BaseRate + p.PerKmRate*distanceKm) * brackets)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
