// Package geometry holds the 2D primitives shared by the scene model, the
// connector resolver and the renderers. All coordinates are scene units.
package geometry

import "math"

// Epsilon is the tolerance used for direction and degeneracy checks.
const Epsilon = 1e-6

// Point is a position or vector in scene coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

func (p Point) Scale(f float64) Point { return Point{p.X * f, p.Y * f} }

func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Len returns the vector length.
func (p Point) Len() float64 { return math.Hypot(p.X, p.Y) }

// Dist returns the distance between p and q.
func (p Point) Dist(q Point) float64 { return q.Sub(p).Len() }

// Near reports whether p and q are within tol of each other.
func (p Point) Near(q Point, tol float64) bool { return p.Dist(q) <= tol }

// Finite reports whether both coordinates are finite numbers.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
