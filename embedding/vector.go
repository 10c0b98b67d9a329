package embedding

import (
	"math"

	"github.com/poiesic/gpthistory/core"
)

// NormalizeVector returns a unit-length copy of v.
// The zero vector is returned as a new zero vector.
func NormalizeVector(v []float32) core.Vector {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sum)

	result := make(core.Vector, len(v))
	// Can't normalize zero vector
	if magnitude == 0 {
		return result
	}

	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}
