package cluster

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ToGeoJSON converts records to a FeatureCollection of points carrying the
// cluster, cluster_id and point_count properties plus one property per
// statistic.
func ToGeoJSON(records []Record) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		f := geojson.NewFeature(orb.Point{r.X, r.Y})
		f.Properties["cluster"] = r.IsCluster
		f.Properties["cluster_id"] = r.ID
		f.Properties["point_count"] = r.PointCount
		for name, v := range r.Statistics {
			f.Properties[name] = v
		}
		fc.Append(f)
	}
	return fc
}
