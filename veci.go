/*

Integer 3D vectors for voxel offsets and block grid coordinates.

*/

package blockmesh

import (
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"
)

// V3i is a 3D integer vector.
type V3i [3]int

// Add adds two vectors. Return v = a + b.
func (a V3i) Add(b V3i) V3i {
	return V3i{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

// MulElem multiplies two vectors component-wise.
func (a V3i) MulElem(b V3i) V3i {
	return V3i{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// ToV3 converts V3i (integer) to r3.Vec (float).
func (a V3i) ToV3() r3.Vec {
	return r3.Vec{X: float64(a[0]), Y: float64(a[1]), Z: float64(a[2])}
}

// Less orders vectors lexicographically, z fastest. The stitcher relies on
// this ordering to break merge ties deterministically.
func (a V3i) Less(b V3i) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	if a[1] != b[1] {
		return a[1] < b[1]
	}
	return a[2] < b[2]
}

func (a V3i) String() string {
	return "(" + strconv.Itoa(a[0]) + "," + strconv.Itoa(a[1]) + "," + strconv.Itoa(a[2]) + ")"
}
