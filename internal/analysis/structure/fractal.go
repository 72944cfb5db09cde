package structure

import "chanlun/internal/models"

// Fractals returns every interior top and bottom of the merged sequence in
// position order. No deduplication happens here; the stroke layer filters.
func Fractals(merged []models.MergedBar) []models.Fractal {
	if len(merged) < 3 {
		return nil
	}

	out := make([]models.Fractal, 0, len(merged)/3)
	for i := 1; i < len(merged)-1; i++ {
		if IsTop(merged[i-1], merged[i], merged[i+1]) {
			out = append(out, models.Fractal{Index: i, Kind: models.FractalTop, Price: merged[i].High})
		} else if IsBottom(merged[i-1], merged[i], merged[i+1]) {
			out = append(out, models.Fractal{Index: i, Kind: models.FractalBottom, Price: merged[i].Low})
		}
	}
	return out
}

// IsTop applies the double condition: both bounds of mid strictly exceed both neighbours.
func IsTop(left, mid, right models.MergedBar) bool {
	return mid.High > left.High && mid.High > right.High &&
		mid.Low > left.Low && mid.Low > right.Low
}

// IsBottom is the mirror of IsTop.
func IsBottom(left, mid, right models.MergedBar) bool {
	return mid.High < left.High && mid.High < right.High &&
		mid.Low < left.Low && mid.Low < right.Low
}
