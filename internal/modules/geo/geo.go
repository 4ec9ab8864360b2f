package geo

import (
	"math"
	"sort"
)

// earthRadiusKm is the mean Earth radius used for great-circle distances.
const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceKm returns the haversine great-circle distance between two points,
// rounded to 2 decimal places. The asin argument is clamped so antipodal and
// polar inputs stay finite.
func DistanceKm(a, b Point) float64 {
	latA := radians(a.Lat)
	latB := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(latA)*math.Cos(latB)*sinLng*sinLng
	if h > 1 {
		h = 1
	}
	if h < 0 {
		h = 0
	}
	d := 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
	return round2(d)
}

// Located pairs an item with its computed distance from an origin.
type Located[T any] struct {
	Item       T       `json:"item"`
	DistanceKm float64 `json:"distance_km"`
}

// SortByProximity annotates each item with its distance from origin and
// returns them in ascending order. Items whose extractor reports no location
// sort last with an infinite distance.
func SortByProximity[T any](items []T, origin Point, location func(T) (Point, bool)) []Located[T] {
	out := make([]Located[T], 0, len(items))
	for _, item := range items {
		d := math.Inf(1)
		if p, ok := location(item); ok {
			d = DistanceKm(origin, p)
		}
		out = append(out, Located[T]{Item: item, DistanceKm: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

// FilterByRadius returns only the items within radiusKm of origin, annotated
// with distance and sorted ascending. Items without a location are excluded.
func FilterByRadius[T any](items []T, origin Point, radiusKm float64, location func(T) (Point, bool)) []Located[T] {
	var out []Located[T]
	for _, item := range items {
		p, ok := location(item)
		if !ok {
			continue
		}
		d := DistanceKm(origin, p)
		if d <= radiusKm {
			out = append(out, Located[T]{Item: item, DistanceKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
