package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"web/supercluster/cluster"
)

// datasetFilename names a saved points file:
// points-{numPoints}p-{timestamp}-{id}.zst
func datasetFilename(saveDir string, numPoints int, at time.Time) string {
	timestamp := at.Format("20060102-150405")
	id := uuid.New().String()[:8] // first 8 chars of a UUID for brevity
	return filepath.Join(saveDir, fmt.Sprintf("points-%dp-%s-%s%s", numPoints, timestamp, id, cluster.CompressedPointsExt))
}

// resolveDatasetPath confines name to saveDir. Absolute names and names
// that climb out of the directory are rejected.
func resolveDatasetPath(saveDir, name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: dataset %q must be a file inside the datasets directory", ErrInvalidRequest, name)
	}
	return filepath.Join(saveDir, name), nil
}

// listDatasets returns the points files in dir, newest first. A missing
// directory holds no datasets.
func listDatasets(dir string) ([]DatasetInfo, error) {
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []DatasetInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read datasets directory: %w", err)
	}

	datasets := []DatasetInfo{}
	for _, file := range files {
		ext := filepath.Ext(file.Name())
		if file.IsDir() || (ext != cluster.CompressedPointsExt && ext != cluster.RawPointsExt) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		datasets = append(datasets, DatasetInfo{
			Name:     file.Name(),
			FileSize: info.Size(),
			Size:     formatFileSize(info.Size()),
			Modified: info.ModTime(),
		})
	}
	slices.SortFunc(datasets, func(a, b DatasetInfo) int {
		return b.Modified.Compare(a.Modified)
	})
	return datasets, nil
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
