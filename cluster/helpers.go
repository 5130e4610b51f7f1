package cluster

import (
	"math/rand"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a set of records, typically one viewport.
type Summary struct {
	TotalPoints     int                    `json:"totalPoints" msgpack:"totalPoints"`
	NumClusters     int                    `json:"numClusters" msgpack:"numClusters"`
	NumSinglePoints int                    `json:"numSinglePoints" msgpack:"numSinglePoints"`
	Statistics      map[string]MetricStats `json:"statisticsSummary" msgpack:"statisticsSummary"`
}

// MetricStats summarises one statistic across records. Average is weighted
// by point count.
type MetricStats struct {
	Min     float64 `json:"min" msgpack:"min"`
	Max     float64 `json:"max" msgpack:"max"`
	Sum     float64 `json:"sum" msgpack:"sum"`
	Average float64 `json:"average" msgpack:"average"`
}

func Summarize(records []Record) Summary {
	summary := Summary{
		Statistics: make(map[string]MetricStats),
	}

	values := make(map[string][]float64)
	weights := make(map[string][]float64)
	for _, r := range records {
		if r.IsCluster {
			summary.NumClusters++
		} else {
			summary.NumSinglePoints++
		}
		summary.TotalPoints += r.PointCount

		for name, v := range r.Statistics {
			values[name] = append(values[name], float64(v))
			weights[name] = append(weights[name], float64(r.PointCount))
		}
	}

	for name, vs := range values {
		summary.Statistics[name] = MetricStats{
			Min:     floats.Min(vs),
			Max:     floats.Max(vs),
			Sum:     floats.Sum(vs),
			Average: stat.Mean(vs, weights[name]),
		}
	}
	return summary
}

// GenerateTestPoints returns n points spread uniformly over bounds. About
// four in five points carry an attribute in [0, 100). The same seed always
// gives the same points.
func GenerateTestPoints(n int, bounds orb.Bound, seed int64) []Point {
	r := rand.New(rand.NewSource(seed))
	points := make([]Point, n)

	for i := 0; i < n; i++ {
		points[i] = Point{
			Lng: bounds.Min.Lon() + r.Float64()*(bounds.Max.Lon()-bounds.Min.Lon()),
			Lat: bounds.Min.Lat() + r.Float64()*(bounds.Max.Lat()-bounds.Min.Lat()),
		}
		if r.Intn(5) != 0 {
			points[i].Attribute = Attr(int64(r.Intn(100)))
		}
	}
	return points
}
