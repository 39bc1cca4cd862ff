package service

import (
	"strconv"

	"secuer/internal/domain"
)

// Mode selects how the clustering step runs. It is decided once by the
// command line and implemented by SingleRun and Ensemble only.
type Mode interface {
	// ResultName is the file stem of the run's artifacts.
	ResultName() string
	describe() map[string]string
}

// SingleRun clusters once with Params.
type SingleRun struct {
	Params domain.RunParameters
}

// Ensemble clusters Times times with seeds Params.Seed+i and builds a
// consensus. Workers bounds the pool when Parallel is set.
type Ensemble struct {
	Params   domain.RunParameters
	Times    int
	Parallel bool
	Workers  int
}

func (SingleRun) ResultName() string { return "SecuerResult" }
func (Ensemble) ResultName() string  { return "SecuerConsenResult" }

func (m SingleRun) describe() map[string]string {
	out := describeParams(m.Params)
	out["secuer_mode"] = "S"
	return out
}

func (m Ensemble) describe() map[string]string {
	out := describeParams(m.Params)
	out["secuer_mode"] = "C"
	out["secuer_M"] = strconv.Itoa(m.Times)
	out["secuer_parallel"] = strconv.FormatBool(m.Parallel)
	out["secuer_workers"] = strconv.Itoa(m.Workers)
	return out
}

func describeParams(p domain.RunParameters) map[string]string {
	return map[string]string{
		"secuer_distance":      p.Distance,
		"secuer_p":             strconv.Itoa(p.Anchors),
		"secuer_knn":           strconv.Itoa(p.KNN),
		"secuer_eskMethod":     p.EskMethod,
		"secuer_eskResolution": strconv.FormatFloat(p.EskResolution, 'g', -1, 64),
		"secuer_gapth":         strconv.Itoa(p.GapTh),
		"secuer_kernel":        p.Kernel,
		"secuer_clusterMethod": p.ClusterMethod,
		"secuer_seed":          strconv.FormatInt(p.Seed, 10),
	}
}
