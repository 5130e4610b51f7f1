package cluster

import "math"

// projectX converts a longitude to spherical mercator x in [0, 1].
func projectX(lng float64) float64 {
	return lng/360 + 0.5
}

// wrapLng brings a longitude outside [-180, 180] back into it. Values
// already in range, 180 included, are returned unchanged.
func wrapLng(lng float64) float64 {
	if lng >= -180 && lng <= 180 {
		return lng
	}
	return normalizeLng(lng)
}

// projectY converts a latitude to spherical mercator y in [0, 1], clamped at
// the poles.
func projectY(lat float64) float64 {
	sin := math.Sin(lat * math.Pi / 180)
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	if y < 0 {
		return 0
	}
	if y > 1 {
		return 1
	}
	return y
}

func unprojectX(x float64) float64 {
	return (x - 0.5) * 360
}

func unprojectY(y float64) float64 {
	y2 := (180 - y*360) * math.Pi / 180
	return 360*math.Atan(math.Exp(y2))/math.Pi - 90
}
