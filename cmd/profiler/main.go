package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/paulmach/orb"

	"web/supercluster/cluster"
)

var (
	cpuprofile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memprofile  = flag.String("memprofile", "", "write memory profile to file")
	heapprofile = flag.String("heapprofile", "", "write heap profile to file")
	numPoints   = flag.Int("points", 100000, "number of points to generate")
	zoomLevel   = flag.Int("zoom", 8, "zoom level to query after the build")
	indexKind   = flag.String("index", cluster.IndexKDTree, "level index backend (kdtree or rtree)")
	dataset     = flag.String("dataset", "", "load points from a .zst or .pts file instead of generating them")
	writePoints = flag.String("write", "", "write the generated points to a .zst or .pts file")
	testall     = flag.Bool("testall", false, "test all configurations")
)

// usBounds is the Continental US, where the generated points land.
var usBounds = orb.Bound{Min: orb.Point{-125, 25}, Max: orb.Point{-65, 49}}

func loadPoints() ([]cluster.Point, error) {
	if *dataset != "" {
		return cluster.LoadPoints(*dataset)
	}
	points := cluster.GenerateTestPoints(*numPoints, usBounds, 42)
	if *writePoints == "" {
		return points, nil
	}

	var err error
	switch filepath.Ext(*writePoints) {
	case cluster.CompressedPointsExt:
		err = cluster.SavePointsCompressed(*writePoints, points)
	case cluster.RawPointsExt:
		err = cluster.SavePointsMMap(*writePoints, points)
	default:
		err = fmt.Errorf("unsupported points file extension %q", filepath.Ext(*writePoints))
	}
	if err != nil {
		return nil, err
	}
	fmt.Printf("Wrote %d points to %s\n", len(points), *writePoints)
	return points, nil
}

func runSingleProfile(points []cluster.Point, zoom int, kind string) error {
	fmt.Printf("Profiling %d points with the %s index, querying zoom %d\n", len(points), kind, zoom)

	opts := cluster.DefaultOptions()
	opts.IndexKind = kind

	var memStatsBefore, memStatsAfter runtime.MemStats
	runtime.ReadMemStats(&memStatsBefore)

	start := time.Now()
	ix, err := cluster.Build(context.Background(), points, opts)
	if err != nil {
		return err
	}
	duration := time.Since(start)

	runtime.ReadMemStats(&memStatsAfter)
	allocMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024

	fmt.Printf("Pyramid built in %v\n", duration)
	fmt.Printf("Memory allocated: %.2f MB\n", allocMB)
	fmt.Printf("Memory usage: %.2f MB\n", float64(memStatsAfter.Alloc)/1024/1024)

	fmt.Printf("\n%-6s | %-10s | %-10s\n", "Zoom", "Nodes", "Clusters")
	fmt.Printf("%s\n", "------------------------------")
	for _, s := range ix.Stats() {
		fmt.Printf("%-6d | %-10d | %-10d\n", s.Zoom, s.Nodes, s.Clusters)
	}

	start = time.Now()
	records := ix.GetClusters(usBounds, zoom)
	summary := cluster.Summarize(records)
	fmt.Printf("\nGetClusters(zoom=%d) returned %d markers (%d clusters, %d points) in %v\n",
		zoom, len(records), summary.NumClusters, summary.TotalPoints, time.Since(start))
	return nil
}

func runProfileBattery() error {
	pointCounts := []int{1000, 10000, 50000, 100000}
	kinds := []string{cluster.IndexKDTree, cluster.IndexRTree}

	fmt.Println("Running comprehensive profile battery...")
	fmt.Println("=======================================")

	// Table header
	fmt.Printf("%-10s | %-8s | %-15s | %-11s | %-10s | %-8s\n",
		"Points", "Index", "Duration", "Memory (MB)", "GC Runs", "Roots")
	fmt.Printf("%s\n", "------------------------------------------------------------------------")

	for _, n := range pointCounts {
		points := cluster.GenerateTestPoints(n, usBounds, 42)
		for _, kind := range kinds {
			opts := cluster.DefaultOptions()
			opts.IndexKind = kind

			var memStatsBefore, memStatsAfter runtime.MemStats
			runtime.ReadMemStats(&memStatsBefore)

			start := time.Now()
			ix, err := cluster.Build(context.Background(), points, opts)
			if err != nil {
				return err
			}
			duration := time.Since(start)

			runtime.ReadMemStats(&memStatsAfter)
			memMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024
			gcRuns := memStatsAfter.NumGC - memStatsBefore.NumGC

			fmt.Printf("%-10d | %-8s | %-15s | %-11.2f | %-10d | %-8d\n",
				n, kind, duration, memMB, gcRuns, ix.Stats()[0].Nodes)
		}

		// Add separator between point counts
		fmt.Printf("%s\n", "------------------------------------------------------------------------")
	}
	return nil
}

func main() {
	flag.Parse()

	// Set up CPU profiling if requested
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			return
		}
		defer f.Close()

		fmt.Println("Starting CPU profiling...")
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			return
		}
		defer pprof.StopCPUProfile()
	}

	var err error
	if *testall {
		err = runProfileBattery()
	} else {
		var points []cluster.Point
		if points, err = loadPoints(); err == nil {
			err = runSingleProfile(points, *zoomLevel, *indexKind)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Profile failed: %v\n", err)
		return
	}

	// Write memory profile if requested
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create memory profile: %v\n", err)
			return
		}
		defer f.Close()
		runtime.GC() // Get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write memory profile: %v\n", err)
		}
	}

	// Write heap profile if requested
	if *heapprofile != "" {
		f, err := os.Create(*heapprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create heap profile: %v\n", err)
			return
		}
		defer f.Close()

		memProfile := pprof.Lookup("heap")
		if memProfile == nil {
			fmt.Fprintf(os.Stderr, "Could not find heap profile\n")
			return
		}

		if err := memProfile.WriteTo(f, 0); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write heap profile: %v\n", err)
		}
	}
}
