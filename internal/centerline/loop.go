package centerline

import (
	"fmt"
	stdmath "math"
	"slices"

	"github.com/Faultbox/trackforge/internal/errs"
	"github.com/Faultbox/trackforge/pkg/math"
)

// Loop is an ordered closed point list; the last point connects to the first.
type Loop []math.Vec3

type edge [2]int

func makeEdge(a, b int) edge {
	if a > b {
		a, b = b, a
	}
	return edge{a, b}
}

// BoundaryLoops welds vertices by exact position, collects the edges used by
// exactly one triangle and chains them into closed loops. Every boundary
// vertex must have exactly two boundary neighbours.
//
// Loops come out in order of their lowest welded vertex, each starting there.
func BoundaryLoops(positions []math.Vec3, indices []uint32) ([]Loop, error) {
	if len(indices)%3 != 0 {
		return nil, malformed(-1, fmt.Sprintf("index count %d is not a multiple of 3", len(indices)))
	}

	weld := make(map[math.Vec3]int, len(positions))
	welded := make([]int, len(positions))
	var points []math.Vec3
	for i, p := range positions {
		id, ok := weld[p]
		if !ok {
			id = len(points)
			weld[p] = id
			points = append(points, p)
		}
		welded[i] = id
	}

	uses := make(map[edge]int)
	var order []edge
	for t := 0; t+2 < len(indices); t += 3 {
		tri := [3]int{}
		for k := range tri {
			idx := int(indices[t+k])
			if idx >= len(positions) {
				return nil, malformed(-1, fmt.Sprintf("index %d out of range", idx))
			}
			tri[k] = welded[idx]
		}
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[0] == tri[2] {
			continue // degenerate after welding
		}
		for k := range tri {
			e := makeEdge(tri[k], tri[(k+1)%3])
			if uses[e] == 0 {
				order = append(order, e)
			}
			uses[e]++
		}
	}

	neighbours := make(map[int][]int)
	for _, e := range order {
		if uses[e] != 1 {
			continue
		}
		neighbours[e[0]] = append(neighbours[e[0]], e[1])
		neighbours[e[1]] = append(neighbours[e[1]], e[0])
	}
	if len(neighbours) == 0 {
		return nil, malformed(-1, "no boundary edges")
	}

	starts := make([]int, 0, len(neighbours))
	for v, ns := range neighbours {
		if len(ns) != 2 {
			return nil, malformed(-1, fmt.Sprintf("boundary vertex %v has %d boundary edges", points[v], len(ns)))
		}
		starts = append(starts, v)
	}
	slices.Sort(starts)

	visited := make(map[int]bool, len(neighbours))
	var loops []Loop
	for _, start := range starts {
		if visited[start] {
			continue
		}
		var loop Loop
		prev, cur := -1, start
		for !visited[cur] {
			visited[cur] = true
			loop = append(loop, points[cur])
			next := neighbours[cur][0]
			if next == prev {
				next = neighbours[cur][1]
			}
			prev, cur = cur, next
		}
		if cur != start {
			return nil, malformed(len(loops), "boundary does not close")
		}
		loops = append(loops, loop)
	}
	return loops, nil
}

// SignedArea returns the shoelace area on the horizontal (x, z) plane.
// With +Y up a positive area means clockwise seen from above.
func SignedArea(loop Loop) float64 {
	var sum float64
	for i, p := range loop {
		q := loop[(i+1)%len(loop)]
		sum += p.X*q.Z - q.X*p.Z
	}
	return sum / 2
}

// OrientClockwise returns the loop in clockwise order. A zero-area loop
// has no orientation and is rejected.
func OrientClockwise(loop Loop) (Loop, error) {
	area := SignedArea(loop)
	if area == 0 {
		return nil, errs.NewValidation("", "zero-area loop")
	}
	if area > 0 {
		return loop, nil
	}
	out := slices.Clone(loop)
	slices.Reverse(out)
	return out, nil
}

// RotateToStart rotates the loop so that index 0 is the point horizontally
// nearest to start. Equal distances pick the lexicographically smallest point.
func RotateToStart(loop Loop, start math.Vec3) Loop {
	if len(loop) == 0 {
		return loop
	}
	best := 0
	bestDist := stdmath.Inf(1)
	target := start.XZ()
	for i, p := range loop {
		d := p.XZ().Distance(target)
		if d < bestDist || (d == bestDist && p.Less(loop[best])) {
			best, bestDist = i, d
		}
	}
	out := make(Loop, 0, len(loop))
	out = append(out, loop[best:]...)
	return append(out, loop[:best]...)
}

// Length returns the perimeter of the closed loop.
func (l Loop) Length() float64 {
	var total float64
	for i, p := range l {
		total += p.Distance(l[(i+1)%len(l)])
	}
	return total
}

// Resample returns n points spaced evenly by arc length around the closed
// loop, starting at index 0.
func Resample(loop Loop, n int) (Loop, error) {
	total := loop.Length()
	if total == 0 || n < 1 {
		return nil, errs.NewValidation("", "zero-length loop")
	}

	out := make(Loop, 0, n)
	seg, segStart := 0, 0.0
	for k := 0; k < n; k++ {
		target := total * float64(k) / float64(n)
		for {
			a, b := loop[seg], loop[(seg+1)%len(loop)]
			segLen := a.Distance(b)
			if target <= segStart+segLen || seg == len(loop)-1 {
				t := 0.0
				if segLen > 0 {
					t = (target - segStart) / segLen
				}
				out = append(out, a.Lerp(b, stdmath.Min(stdmath.Max(t, 0), 1)))
				break
			}
			segStart += segLen
			seg++
		}
	}
	return out, nil
}

func malformed(loop int, detail string) error {
	return &errs.ValidationError{Loop: loop, Reason: "malformed road mesh: " + detail}
}
