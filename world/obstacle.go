package world

import "github.com/hupe1980/navgraph/handle"

// Center returns the world position of the obstacle's pose origin.
func (o Obstacle) Center() handle.Vec3 {
	return o.Pose.Col(3).Vec3()
}

// Intersects reports whether a capsule of the given radius swept from a to
// b touches the obstacle. The capsule is approximated by inflating the box.
func (o Obstacle) Intersects(a, b handle.Vec3, radius float32) bool {
	if o.Pose.Det() == 0 {
		return false
	}
	inv := o.Pose.Inv()
	la := inv.Mul4x1(a.Vec4(1)).Vec3()
	lb := inv.Mul4x1(b.Vec4(1)).Vec3()

	lo := handle.Vec3{min(o.Min[0], o.Max[0]), min(o.Min[1], o.Max[1]), min(o.Min[2], o.Max[2])}
	hi := handle.Vec3{max(o.Min[0], o.Max[0]), max(o.Min[1], o.Max[1]), max(o.Min[2], o.Max[2])}
	r := handle.Vec3{radius, radius, radius}
	lo, hi = lo.Sub(r), hi.Add(r)

	d := lb.Sub(la)
	tmin, tmax := float32(0), float32(1)
	for i := range 3 {
		if d[i] == 0 {
			if la[i] < lo[i] || la[i] > hi[i] {
				return false
			}
			continue
		}
		t1 := (lo[i] - la[i]) / d[i]
		t2 := (hi[i] - la[i]) / d[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
		if tmin > tmax {
			return false
		}
	}
	return true
}
