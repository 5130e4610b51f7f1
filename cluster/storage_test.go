package cluster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointDatasetRoundTrip(t *testing.T) {
	points := GenerateTestPoints(5000, orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}}, 10)
	points = append(points, Point{Lng: 1, Lat: 2, Attribute: Attr(-7)}, Point{})

	formats := map[string]func(string, []Point) error{
		"points" + CompressedPointsExt: SavePointsCompressed,
		"points" + RawPointsExt:        SavePointsMMap,
	}
	for name, save := range formats {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, save(path, points))

			loaded, err := LoadPoints(path)
			require.NoError(t, err)
			if diff := cmp.Diff(points, loaded); diff != "" {
				t.Errorf("loaded points differ (-saved +loaded):\n%s", diff)
			}
		})
	}
}

func TestEmptyPointDataset(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"empty" + CompressedPointsExt, "empty" + RawPointsExt} {
		path := filepath.Join(dir, name)
		if filepath.Ext(name) == CompressedPointsExt {
			require.NoError(t, SavePointsCompressed(path, nil))
		} else {
			require.NoError(t, SavePointsMMap(path, nil))
		}
		loaded, err := LoadPoints(path)
		require.NoError(t, err)
		assert.Empty(t, loaded)
	}
}

func TestLoadPointsRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPoints(filepath.Join(dir, "points.csv"))
	assert.ErrorContains(t, err, "unsupported")

	_, err = LoadPoints(filepath.Join(dir, "missing.pts"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	short := filepath.Join(dir, "short.pts")
	require.NoError(t, os.WriteFile(short, []byte("SCPT"), 0644))
	_, err = LoadPoints(short)
	assert.ErrorIs(t, err, ErrBadPointsFile)

	magic := filepath.Join(dir, "magic.pts")
	require.NoError(t, os.WriteFile(magic, []byte("NOPE\x01\x00\x00\x00\x00\x00\x00\x00"), 0644))
	_, err = LoadPoints(magic)
	assert.ErrorIs(t, err, ErrBadPointsFile)

	truncated := filepath.Join(dir, "truncated.pts")
	require.NoError(t, SavePointsMMap(truncated, threePoints()))
	raw, err := os.ReadFile(truncated)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(truncated, raw[:len(raw)-1], 0644))
	_, err = LoadPoints(truncated)
	assert.ErrorIs(t, err, ErrBadPointsFile)

	zst := filepath.Join(dir, "truncated.zst")
	require.NoError(t, SavePointsCompressed(zst, threePoints()))
	raw, err = os.ReadFile(zst)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(zst, raw[:len(raw)/2], 0644))
	_, err = LoadPoints(zst)
	assert.Error(t, err)
}
