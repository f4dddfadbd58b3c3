// Package predictor provides the branch predictor the DUT model follows
// when it runs ahead of retirement.
package predictor

// Config holds configuration for the branch predictor.
type Config struct {
	// BHTSize is the number of entries in the Branch History Table.
	// Must be a power of 2. Default is 1024.
	BHTSize uint32 `json:"bht_size"`
	// BTBSize is the number of entries in the Branch Target Buffer.
	// Must be a power of 2. Default is 256.
	BTBSize uint32 `json:"btb_size"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		BHTSize: 1024,
		BTBSize: 256,
	}
}

// Stats holds statistics for the branch predictor.
type Stats struct {
	Predictions    uint64
	Correct        uint64
	Mispredictions uint64
	BTBHits        uint64
	BTBMisses      uint64
}

// Accuracy returns the prediction accuracy as a percentage.
func (s Stats) Accuracy() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Predictions) * 100
}

// Prediction is the predicted outcome of a conditional branch.
type Prediction struct {
	Taken bool
	// Target is only meaningful when TargetKnown is set.
	Target      uint64
	TargetKnown bool
}

// Next returns the fetch address the prediction leads to for the branch
// at pc. A taken prediction without a known target falls through.
func (p Prediction) Next(pc uint64) uint64 {
	if p.Taken && p.TargetKnown {
		return p.Target
	}
	return pc + 4
}

// Predictor is a bimodal predictor of 2-bit saturating counters with a
// direct-mapped Branch Target Buffer.
type Predictor struct {
	// 0 strongly not taken, 1 weakly not taken, 2 weakly taken,
	// 3 strongly taken.
	bht []uint8

	btb      []btbEntry
	btbValid []bool

	bhtMask uint64
	btbMask uint64

	stats Stats
}

type btbEntry struct {
	pc     uint64
	target uint64
}

// New creates a predictor. Sizes of 0 take the defaults; other sizes are
// rounded down to a power of 2.
func New(config Config) *Predictor {
	def := DefaultConfig()
	bhtSize := powerOfTwo(config.BHTSize, def.BHTSize)
	btbSize := powerOfTwo(config.BTBSize, def.BTBSize)

	p := &Predictor{
		bht:      make([]uint8, bhtSize),
		btb:      make([]btbEntry, btbSize),
		btbValid: make([]bool, btbSize),
		bhtMask:  uint64(bhtSize - 1),
		btbMask:  uint64(btbSize - 1),
	}
	p.Reset()
	return p
}

func powerOfTwo(n, def uint32) uint32 {
	if n == 0 {
		return def
	}
	p := uint32(1)
	for p*2 <= n && p*2 != 0 {
		p *= 2
	}
	return p
}

// Instructions are 4-byte aligned, so the low two PC bits are dropped.
func (p *Predictor) bhtIndex(pc uint64) uint64 { return (pc >> 2) & p.bhtMask }
func (p *Predictor) btbIndex(pc uint64) uint64 { return (pc >> 2) & p.btbMask }

// Predict makes a prediction for the conditional branch at pc.
func (p *Predictor) Predict(pc uint64) Prediction {
	pred := Prediction{Taken: p.bht[p.bhtIndex(pc)] >= 2}

	i := p.btbIndex(pc)
	if p.btbValid[i] && p.btb[i].pc == pc {
		pred.Target = p.btb[i].target
		pred.TargetKnown = true
		p.stats.BTBHits++
	} else {
		p.stats.BTBMisses++
	}

	p.stats.Predictions++
	return pred
}

// Update trains the predictor with the resolved outcome of the branch at
// pc.
func (p *Predictor) Update(pc uint64, taken bool, target uint64) {
	i := p.bhtIndex(pc)
	counter := p.bht[i]

	if (counter >= 2) == taken {
		p.stats.Correct++
	} else {
		p.stats.Mispredictions++
	}

	switch {
	case taken && counter < 3:
		p.bht[i] = counter + 1
	case !taken && counter > 0:
		p.bht[i] = counter - 1
	}

	if taken {
		j := p.btbIndex(pc)
		p.btb[j] = btbEntry{pc: pc, target: target}
		p.btbValid[j] = true
	}
}

// Stats returns the predictor statistics.
func (p *Predictor) Stats() Stats {
	return p.stats
}

// Reset clears all predictor state and statistics. Counters restart
// weakly taken.
func (p *Predictor) Reset() {
	for i := range p.bht {
		p.bht[i] = 2
	}
	for i := range p.btbValid {
		p.btbValid[i] = false
	}
	p.stats = Stats{}
}
