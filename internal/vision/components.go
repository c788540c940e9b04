package vision

// ExtractComponents groups 4-connected on pixels of the mask into bounding
// boxes. Components whose bounding-box area is below minSize are dropped as
// noise. Boxes are returned in scan order of their first pixel.
//
// Switching to 8-connectivity merges diagonal trails into fewer, larger
// boxes, so minSize would need recalibrating.
func ExtractComponents(m *Mask, minSize int) []BoundingBox {
	if m == nil || m.Width <= 0 || m.Height <= 0 {
		return nil
	}

	w, h := m.Width, m.Height
	visited := make([]bool, w*h)
	queue := make([]int, 0, 64)
	var boxes []BoundingBox

	for start := range m.Bits {
		if !m.Bits[start] || visited[start] {
			continue
		}

		minX, minY := start%w, start/w
		maxX, maxY := minX, minY

		visited[start] = true
		queue = append(queue[:0], start)

		for head := 0; head < len(queue); head++ {
			idx := queue[head]
			x, y := idx%w, idx/w

			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}

			if x > 0 {
				queue = visit(m, visited, queue, idx-1)
			}
			if x < w-1 {
				queue = visit(m, visited, queue, idx+1)
			}
			if y > 0 {
				queue = visit(m, visited, queue, idx-w)
			}
			if y < h-1 {
				queue = visit(m, visited, queue, idx+w)
			}
		}

		box := BoundingBox{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1}
		if box.Area() >= minSize {
			boxes = append(boxes, box)
		}
	}

	return boxes
}

func visit(m *Mask, visited []bool, queue []int, idx int) []int {
	if m.Bits[idx] && !visited[idx] {
		visited[idx] = true
		queue = append(queue, idx)
	}
	return queue
}
