package variety

import "strings"

// Detector watches the raw sequence of selection identifiers and flags
// emergent repetition: straight repeats (A-A-A), alternation (A-B-A-B) and
// longer cycles. It also keeps n-gram counts for checkpoint export.
type Detector struct {
	seq    []string
	cap    int
	ngrams map[string]int
}

// NewDetector creates a detector over a bounded sequence buffer.
func NewDetector(capacity int) *Detector {
	if capacity <= 0 {
		capacity = 10
	}
	return &Detector{cap: capacity, ngrams: make(map[string]int)}
}

// Record appends a selection identifier to the sequence buffer.
func (d *Detector) Record(id string) {
	d.seq = append(d.seq, id)
	if len(d.seq) > d.cap {
		d.seq = d.seq[len(d.seq)-d.cap:]
	}
	for _, n := range []int{2, 3} {
		if len(d.seq) >= n {
			gram := strings.Join(d.seq[len(d.seq)-n:], ">")
			d.ngrams[gram]++
		}
	}
}

// WouldCreatePattern reports whether selecting id next would produce a
// repeat, an alternation, or a cycle of period 2..len/2 in the buffer.
func (d *Detector) WouldCreatePattern(id string) bool {
	next := append(append([]string(nil), d.seq...), id)
	n := len(next)

	// Straight repeat: A A A.
	if n >= 3 && next[n-1] == next[n-2] && next[n-2] == next[n-3] {
		return true
	}
	// Alternation: A B A B.
	if n >= 4 &&
		next[n-1] == next[n-3] &&
		next[n-2] == next[n-4] &&
		next[n-1] != next[n-2] {
		return true
	}
	// General cycles: the tail repeats with period p at least twice.
	for p := 2; p <= n/2; p++ {
		if tailHasPeriod(next, p) {
			return true
		}
	}
	return false
}

// WouldBreakPattern reports whether a 2- or 3-item cycle is currently
// running and id diverges from its expected continuation.
func (d *Detector) WouldBreakPattern(id string) bool {
	for _, p := range []int{2, 3} {
		if len(d.seq) < 2*p {
			continue
		}
		if !tailHasPeriod(d.seq, p) {
			continue
		}
		expected := d.seq[len(d.seq)-p]
		if id != expected {
			return true
		}
	}
	return false
}

// tailHasPeriod checks that the last 2*p entries repeat with period p and
// the cycle actually varies (a constant run is a repeat, not a cycle).
func tailHasPeriod(seq []string, p int) bool {
	if len(seq) < 2*p {
		return false
	}
	tail := seq[len(seq)-2*p:]
	varied := false
	for i := 0; i < p; i++ {
		if tail[i] != tail[i+p] {
			return false
		}
		if tail[i] != tail[0] {
			varied = true
		}
	}
	return p == 1 || varied
}

// DetectorSnapshot serializes the detector for checkpoints.
type DetectorSnapshot struct {
	Sequence []string       `json:"sequence"`
	NGrams   map[string]int `json:"ngrams"`
}

func (d *Detector) snapshot() DetectorSnapshot {
	ngrams := make(map[string]int, len(d.ngrams))
	for k, v := range d.ngrams {
		ngrams[k] = v
	}
	return DetectorSnapshot{
		Sequence: append([]string(nil), d.seq...),
		NGrams:   ngrams,
	}
}

func (d *Detector) restore(snap DetectorSnapshot) {
	d.seq = append([]string(nil), snap.Sequence...)
	d.ngrams = make(map[string]int, len(snap.NGrams))
	for k, v := range snap.NGrams {
		d.ngrams[k] = v
	}
}
