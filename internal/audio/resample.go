package audio

// ToMono averages interleaved channels down to one
func ToMono(b *Buffer) []int16 {
	if b.Format.Channels <= 1 {
		out := make([]int16, len(b.Samples))
		copy(out, b.Samples)
		return out
	}

	ch := b.Format.Channels
	out := make([]int16, b.Frames())
	for i := range out {
		sum := 0
		for c := 0; c < ch; c++ {
			sum += int(b.Samples[i*ch+c])
		}
		out[i] = int16(sum / ch)
	}
	return out
}

// Resample converts mono samples from one rate to another with linear interpolation
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	n := int(int64(len(samples)) * int64(toRate) / int64(fromRate))
	out := make([]int16, n)
	step := float64(fromRate) / float64(toRate)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		a, b := float64(samples[idx]), float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

// mixSample adds b to a, saturating at the int16 range
func mixSample(a, b int16) int16 {
	sum := int32(a) + int32(b)
	switch {
	case sum > 32767:
		return 32767
	case sum < -32768:
		return -32768
	default:
		return int16(sum)
	}
}
