package vision

// Polygon is a region of interest. The last point connects back to the first.
// A polygon with fewer than three points does not restrict anything.
type Polygon []Point

// Restricts reports whether the polygon actually limits the sampled area.
func (p Polygon) Restricts() bool {
	return len(p) >= 3
}

// Contains reports whether (x, y) lies inside the polygon using the
// crossing-number test. An edge counts when y is in [min(yi, yj), max(yi, yj))
// and the crossing lies strictly to the right of x, so points on the boundary
// always get the same answer.
func (p Polygon) Contains(x, y float64) bool {
	if !p.Restricts() {
		return true
	}

	inside := false
	n := len(p)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := p[i].X, p[i].Y
		xj, yj := p[j].X, p[j].Y
		if (yi > y) != (yj > y) {
			cross := (xj-xi)*(y-yi)/(yj-yi) + xi
			if x < cross {
				inside = !inside
			}
		}
	}
	return inside
}

// Mask evaluates Contains for every pixel of a width x height frame and
// returns the row-major membership grid. It returns nil when the polygon
// does not restrict.
func (p Polygon) Mask(width, height int) []bool {
	if !p.Restricts() || width <= 0 || height <= 0 {
		return nil
	}
	m := make([]bool, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			m[y*width+x] = p.Contains(float64(x), float64(y))
		}
	}
	return m
}

// Equal reports whether two polygons have identical vertices.
func (p Polygon) Equal(other Polygon) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}
