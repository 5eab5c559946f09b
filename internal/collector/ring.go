package collector

// sampleWindow is the number of speed samples averaged
const sampleWindow = 100

// ring is a fixed-size circular buffer of speed samples
type ring struct {
	buf   [sampleWindow]float64
	next  int
	count int
}

func (r *ring) push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % sampleWindow
	if r.count < sampleWindow {
		r.count++
	}
}

func (r *ring) mean() float64 {
	if r.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < r.count; i++ {
		sum += r.buf[i]
	}
	return sum / float64(r.count)
}

func (r *ring) reset() {
	*r = ring{}
}
