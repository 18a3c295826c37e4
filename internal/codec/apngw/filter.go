package apngw

const (
	filterNone = iota
	filterSub
	filterUp
	filterAverage
	filterPaeth
	numFilters
)

// rowFilter holds scratch rows for every filter type; index 0 of each row is
// the filter byte.
type rowFilter struct {
	bpp  int
	rows [numFilters][]byte
}

func newRowFilter(stride, bpp int) *rowFilter {
	f := &rowFilter{bpp: bpp}
	for i := range f.rows {
		f.rows[i] = make([]byte, stride+1)
		f.rows[i][0] = byte(i)
	}
	return f
}

// apply filters cur against prev and returns the row with the smallest sum
// of absolute signed residuals, filter byte included. Up and Paeth are
// tried first since they usually win on animation frames.
func (f *rowFilter) apply(cur, prev []byte) []byte {
	copy(f.rows[filterNone][1:], cur)
	bpp := f.bpp

	best, bestSum := filterUp, 0
	up := f.rows[filterUp][1:]
	for i := range cur {
		up[i] = cur[i] - prev[i]
		bestSum += residual(up[i])
	}

	order := [...]int{filterPaeth, filterNone, filterSub, filterAverage}
	for _, ft := range order {
		out := f.rows[ft][1:]
		sum := 0
		for i := 0; i < len(cur) && sum < bestSum; i++ {
			var left, upLeft byte
			if i >= bpp {
				left, upLeft = cur[i-bpp], prev[i-bpp]
			}
			switch ft {
			case filterNone:
				out[i] = cur[i]
			case filterSub:
				out[i] = cur[i] - left
			case filterAverage:
				out[i] = cur[i] - byte((int(left)+int(prev[i]))/2)
			case filterPaeth:
				out[i] = cur[i] - paeth(left, prev[i], upLeft)
			}
			sum += residual(out[i])
		}
		if sum < bestSum {
			best, bestSum = ft, sum
		}
	}
	return f.rows[best]
}

func residual(b byte) int {
	if b < 128 {
		return int(b)
	}
	return 256 - int(b)
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := absInt(p-int(a)), absInt(p-int(b)), absInt(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	default:
		return c
	}
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
