package preprocess

import (
	"fmt"
	"math"
	"sort"

	"secuer/internal/anndata"
	"secuer/internal/config"
)

// SelectionError reports why variable-feature selection could not produce a
// usable subset. The pipeline treats it as recoverable.
type SelectionError struct {
	Reason string
}

func (e *SelectionError) Error() string { return "highly variable genes: " + e.Reason }

// HighlyVariableGenes flags variable features of a log-normalized matrix.
// The returned mask has one entry per feature. Dispersions are computed on
// the de-logged values and normalized within mean bins (seurat) or with the
// median absolute deviation (cell_ranger).
func HighlyVariableGenes(m *anndata.Matrix, o config.HVGOptions) ([]bool, error) {
	n, d := m.NObs(), m.NVars()
	if n < 2 {
		return nil, &SelectionError{Reason: fmt.Sprintf("need at least 2 observations, got %d", n)}
	}
	if d == 0 {
		return nil, &SelectionError{Reason: "no features"}
	}
	means := make([]float64, d)
	sq := make([]float64, d)
	for _, row := range m.X {
		for j, v := range row {
			e := math.Expm1(v)
			means[j] += e
			sq[j] += e * e
		}
	}
	logMean := make([]float64, d)
	disp := make([]float64, d)
	finite := 0
	for j := range means {
		mean := means[j] / float64(n)
		variance := (sq[j]/float64(n) - mean*mean) * float64(n) / float64(n-1)
		disp[j] = math.NaN()
		if mean > 0 && variance > 1e-12*mean*mean {
			disp[j] = math.Log(variance / mean)
			finite++
		}
		logMean[j] = math.Log1p(mean)
	}
	if finite == 0 {
		return nil, &SelectionError{Reason: "all features have zero variance"}
	}

	var norm []float64
	switch o.Flavor {
	case "cell_ranger":
		norm = normalizeCellRanger(logMean, disp)
	default:
		norm = normalizeSeurat(logMean, disp, o.NBins)
	}

	mask := make([]bool, d)
	selected := 0
	if o.NTopGenes > 0 {
		order := make([]int, 0, d)
		for j, v := range norm {
			if !math.IsNaN(v) {
				order = append(order, j)
			}
		}
		sort.SliceStable(order, func(a, b int) bool { return norm[order[a]] > norm[order[b]] })
		if len(order) > o.NTopGenes {
			order = order[:o.NTopGenes]
		}
		for _, j := range order {
			mask[j] = true
		}
		selected = len(order)
	} else {
		for j := range mask {
			v := norm[j]
			if math.IsNaN(v) {
				continue
			}
			if logMean[j] > o.MinMean && logMean[j] < o.MaxMean && v > o.MinDisp && v < o.MaxDisp {
				mask[j] = true
				selected++
			}
		}
	}
	if selected == 0 {
		return nil, &SelectionError{Reason: "no feature passes the dispersion cutoffs"}
	}
	return mask, nil
}

// normalizeSeurat z-scores dispersions within equal-width bins of the mean.
// A bin holding a single feature gives that feature a score of 1.
func normalizeSeurat(logMean, disp []float64, nBins int) []float64 {
	if nBins <= 0 {
		nBins = 20
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range logMean {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	width := (hi - lo) / float64(nBins)
	bin := make([]int, len(logMean))
	for j, v := range logMean {
		if width > 0 {
			b := int((v - lo) / width)
			if b >= nBins {
				b = nBins - 1
			}
			bin[j] = b
		}
	}
	sum := make([]float64, nBins)
	sum2 := make([]float64, nBins)
	cnt := make([]float64, nBins)
	for j, v := range disp {
		if math.IsNaN(v) {
			continue
		}
		sum[bin[j]] += v
		sum2[bin[j]] += v * v
		cnt[bin[j]]++
	}
	out := make([]float64, len(disp))
	for j, v := range disp {
		b := bin[j]
		switch {
		case math.IsNaN(v):
			out[j] = math.NaN()
		case cnt[b] < 2:
			out[j] = 1
		default:
			mean := sum[b] / cnt[b]
			std := math.Sqrt(math.Max(0, (sum2[b]-cnt[b]*mean*mean)/(cnt[b]-1)))
			if std == 0 {
				out[j] = 0
			} else {
				out[j] = (v - mean) / std
			}
		}
	}
	return out
}

// normalizeCellRanger groups features by mean percentile (bottom 10%, then
// 5% bands) and scores dispersions by their distance to the band median in
// units of the band's median absolute deviation.
func normalizeCellRanger(logMean, disp []float64) []float64 {
	order := make([]int, len(logMean))
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool { return logMean[order[a]] < logMean[order[b]] })
	band := make([]int, len(logMean))
	for rank, j := range order {
		p := float64(rank) / float64(len(order))
		if p >= 0.10 {
			band[j] = 1 + int((p-0.10)/0.05)
		}
	}
	groups := map[int][]float64{}
	for j, v := range disp {
		if !math.IsNaN(v) {
			groups[band[j]] = append(groups[band[j]], v)
		}
	}
	med := map[int]float64{}
	mad := map[int]float64{}
	for b, vals := range groups {
		m := median(vals)
		dev := make([]float64, len(vals))
		for i, v := range vals {
			dev[i] = math.Abs(v - m)
		}
		med[b], mad[b] = m, median(dev)
	}
	out := make([]float64, len(disp))
	for j, v := range disp {
		b := band[j]
		switch {
		case math.IsNaN(v):
			out[j] = math.NaN()
		case mad[b] == 0:
			out[j] = 0
		default:
			out[j] = (v - med[b]) / mad[b]
		}
	}
	return out
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
