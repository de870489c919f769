package biometric

import (
	"fmt"
	"math"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// DefaultThreshold is the distance below which two descriptors are
// considered the same person.
const DefaultThreshold = 0.6

// Descriptor is a fixed-length face signature produced by the face model.
type Descriptor []float64

// Clone returns a copy that does not share memory with d.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	copy(out, d)
	return out
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Descriptor) (float64, error) {
	if len(a) != len(b) {
		return 0, domain.ErrDescriptorLengthMismatch.WithError(
			fmt.Errorf("lengths %d and %d", len(a), len(b)))
	}

	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}

	return math.Sqrt(sum), nil
}

// Average returns the element-wise arithmetic mean of descriptors.
func Average(descriptors ...Descriptor) (Descriptor, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("average: no descriptors")
	}

	size := len(descriptors[0])
	if size == 0 {
		return nil, fmt.Errorf("average: empty descriptor")
	}

	sum := make([]float64, size)
	for n, d := range descriptors {
		if len(d) != size {
			return nil, domain.ErrDescriptorLengthMismatch.WithError(
				fmt.Errorf("descriptor %d has length %d, want %d", n, len(d), size))
		}
		for i, v := range d {
			sum[i] += v
		}
	}

	count := float64(len(descriptors))
	avg := make(Descriptor, size)
	for i, v := range sum {
		avg[i] = v / count
	}

	return avg, nil
}

// Match reports whether distance is strictly below threshold.
func Match(distance, threshold float64) bool {
	return distance < threshold
}
