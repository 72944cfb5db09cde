package structure

import (
	"math"

	"chanlun/internal/models"
)

// BuildPivots scans completed components in windows of three. A window whose
// ranges strictly intersect forms a pivot with a fixed [Low, High] bound;
// later components extend it while they touch that bound. The first component
// that misses the bound settles the pivot, and scanning resumes two positions
// before it so neighbouring pivots may share components.
func BuildPivots(comps []Component, level int) []models.Pivot {
	done := completedOnly(comps)

	var out []models.Pivot
	for i := 0; i+2 < len(done); {
		a, b, c := done[i], done[i+1], done[i+2]
		zg := math.Min(a.High(), math.Min(b.High(), c.High()))
		zd := math.Max(a.Low(), math.Max(b.Low(), c.Low()))
		if zg <= zd {
			i++
			continue
		}

		p := models.Pivot{
			Level:     level,
			Low:       zd,
			High:      zg,
			RangeLow:  math.Min(a.Low(), math.Min(b.Low(), c.Low())),
			RangeHigh: math.Max(a.High(), math.Max(b.High(), c.High())),
			SegStart:  a.ComponentIndex(),
			SegEnd:    c.ComponentIndex(),
			Count:     3,
			BreakSeg:  -1,
		}

		j := i + 3
		for ; j < len(done); j++ {
			x := done[j]
			if x.High() < zd || x.Low() > zg {
				break
			}
			p.SegEnd = x.ComponentIndex()
			p.Count++
			p.RangeHigh = math.Max(p.RangeHigh, x.High())
			p.RangeLow = math.Min(p.RangeLow, x.Low())
		}

		if j >= len(done) {
			out = append(out, p)
			break
		}

		x := done[j]
		p.Settled = true
		p.BreakSeg = x.ComponentIndex()
		p.BreakDirection = models.DirectionDown
		if x.Low() > zg {
			p.BreakDirection = models.DirectionUp
		}
		out = append(out, p)
		i = j - 2
	}
	return out
}

func completedOnly(comps []Component) []Component {
	out := make([]Component, 0, len(comps))
	for _, c := range comps {
		if c.Completed() {
			out = append(out, c)
		}
	}
	return out
}
