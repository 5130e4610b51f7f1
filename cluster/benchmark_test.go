package cluster

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/paulmach/orb"
)

var usBounds = orb.Bound{Min: orb.Point{-125, 25}, Max: orb.Point{-65, 49}}

// benchmarkBuild builds a full pyramid over numPoints points in the US region
func benchmarkBuild(b *testing.B, numPoints int, kind string) {
	points := GenerateTestPoints(numPoints, usBounds, 42)
	opts := DefaultOptions()
	opts.IndexKind = kind

	var memStatsBefore, memStatsAfter runtime.MemStats
	runtime.ReadMemStats(&memStatsBefore)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Build(context.Background(), points, opts); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()

	runtime.ReadMemStats(&memStatsAfter)
	allocMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024
	b.ReportMetric(allocMB/float64(b.N), "MB/op")
}

func BenchmarkBuildSmall_KDTree(b *testing.B)  { benchmarkBuild(b, 1000, IndexKDTree) }
func BenchmarkBuildMedium_KDTree(b *testing.B) { benchmarkBuild(b, 10000, IndexKDTree) }
func BenchmarkBuildLarge_KDTree(b *testing.B)  { benchmarkBuild(b, 100000, IndexKDTree) }
func BenchmarkBuildSmall_RTree(b *testing.B)   { benchmarkBuild(b, 1000, IndexRTree) }
func BenchmarkBuildMedium_RTree(b *testing.B)  { benchmarkBuild(b, 10000, IndexRTree) }

func BenchmarkGetClusters(b *testing.B) {
	ix, err := Build(context.Background(), GenerateTestPoints(100000, usBounds, 42), DefaultOptions())
	if err != nil {
		b.Fatal(err)
	}
	for _, zoom := range []int{2, 8, 14} {
		b.Run(fmt.Sprintf("zoom=%d", zoom), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				ix.GetClusters(usBounds, zoom)
			}
		})
	}
}

func BenchmarkGetLeaves(b *testing.B) {
	ix, err := Build(context.Background(), GenerateTestPoints(100000, usBounds, 42), DefaultOptions())
	if err != nil {
		b.Fatal(err)
	}
	root, err := ix.Decode(ix.GetClusters(world, 0)[0].ID)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ix.GetLeaves(root, 10, 500); err != nil {
			b.Fatal(err)
		}
	}
}
