package capture

import (
	"math"
	"time"
)

// TimeSliceFor returns the chunk duration that holds chunkSize samples at samplingRate,
// rounded to the nearest millisecond
func TimeSliceFor(chunkSize, samplingRate int) time.Duration {
	if chunkSize <= 0 || samplingRate <= 0 {
		return DefaultTimeSlice
	}
	ms := math.Round(1000 * float64(chunkSize) / float64(samplingRate))
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}
