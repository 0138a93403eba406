package download

import "github.com/openmusicplayer/bilimusic/internal/extract"

// unknownTotalStep is how far the bar moves per event when the extractor
// cannot report a total size.
const unknownTotalStep = 1

// progressBand maps extractor progress into [floor, ceil]. Within one
// attempt the reported value never decreases.
type progressBand struct {
	floor   int
	ceil    int
	current int
}

func newProgressBand(floor, ceil int) *progressBand {
	return &progressBand{floor: floor, ceil: ceil, current: floor}
}

// reset moves the band back to its floor for a new attempt
func (b *progressBand) reset() {
	b.current = b.floor
}

// update folds p into the band and reports whether the percentage moved
func (b *progressBand) update(p extract.Progress) (int, bool) {
	next := b.current

	switch {
	case p.BytesTotal > 0:
		done := p.BytesDone
		if done > p.BytesTotal {
			done = p.BytesTotal
		}
		if done < 0 {
			done = 0
		}
		next = b.floor + int(done*int64(b.ceil-b.floor)/p.BytesTotal)
	default:
		// Stay one short of the ceiling so unknown-size downloads never
		// look finished before they are
		if next+unknownTotalStep < b.ceil {
			next += unknownTotalStep
		}
	}

	if next > b.ceil {
		next = b.ceil
	}
	if next <= b.current {
		return b.current, false
	}
	b.current = next
	return next, true
}
