package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"secuer/internal/config"
	"secuer/internal/domain"
	"secuer/internal/ensemble"
	"secuer/internal/logging"
	"secuer/internal/secuer"
	"secuer/internal/service"
	"secuer/internal/tui"
)

const version = "1.0.12"

// yamlEnv names the environment variable consulted when --yaml is omitted.
const yamlEnv = "SECUER_YAML"

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options holds every flag of the S and C commands.
type options struct {
	input     string
	outfile   string
	distance  string
	anchors   int
	knn       int
	seed      int64
	parallel  bool
	workers   int
	transpose bool
	yaml      string
	plot      bool
	markers   bool
	progress  bool

	eskMethod     string
	eskResolution float64
	gapth         int
	clusterMethod string
	kernel        string

	times int
}

// flagKeys maps flags that override the options document onto its keys.
var flagKeys = map[string]string{
	"anchors":            config.KeyAnchors,
	"knn":                config.KeyKNN,
	"seed":               config.KeySeed,
	"distance":           config.KeyDistance,
	"eskm":               config.KeyEskMethod,
	"reso":               config.KeyEskResolution,
	"gapth":              config.KeyGapTh,
	"kernel":             config.KeyKernel,
	"cm":                 config.KeyClusterMethod,
	"times":              config.KeyTimes,
	"multiProcessState":  config.KeyParallel,
	"num_multiProcesses": config.KeyWorkers,
}

// legacyFlags maps spellings of earlier releases onto the current flag names.
var legacyFlags = map[string]string{
	"Gaussiankernel": "kernel",
	"Times":          "times",
}

func normalizeFlag(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if current, ok := legacyFlags[name]; ok {
		name = current
	}
	return pflag.NormalizedName(name)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	log := logging.New(stderr, logging.WithColor(true))
	root := newRootCommand(ctx, log, stdout)
	if args == nil {
		// cobra reads os.Args when given nil
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		log.Error(err.Error())
		return 1
	}
	return 0
}

func newRootCommand(ctx context.Context, log *logging.Logger, stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "secuer",
		Short:         "Secuer: ultrafast, scalable and accurate clustering of single-cell RNA-seq data.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(stdout, cmd.Short)
			fmt.Fprintln(stdout, "version:", version)
			return cmd.Help()
		},
	}
	root.AddCommand(newSingleCommand(ctx, log, stdout), newConsensusCommand(ctx, log, stdout), newInitCommand(log))
	return root
}

func addCommonFlags(fs *pflag.FlagSet, o *options, defaultOut string) {
	fs.StringVarP(&o.input, "inputfile", "i", "", "input data file (csv, tsv, txt, mtx, mtx.gz, scdb)")
	fs.StringVarP(&o.outfile, "outfile", "o", defaultOut, "output directory")
	fs.StringVarP(&o.distance, "distance", "d", domain.DistanceEuclidean, "distance metric: euclidean, sqeuclidean, cosine or L1")
	fs.IntVarP(&o.anchors, "anchors", "p", 1000, "number of anchors")
	fs.Int64VarP(&o.seed, "seed", "s", 1, "random seed")
	fs.IntVar(&o.knn, "knn", 7, "number of nearest anchors per observation")
	fs.BoolVar(&o.parallel, "multiProcessState", false, "run ensemble members in parallel")
	fs.IntVar(&o.workers, "num_multiProcesses", ensemble.DefaultWorkers, "number of parallel workers")
	fs.BoolVar(&o.transpose, "transpose", false, "input rows are features, columns are observations")
	fs.StringVar(&o.yaml, "yaml", "", "options document (defaults to $"+yamlEnv+")")
	fs.BoolVar(&o.plot, "plot", false, "write a PCA scatter plot of the result")
	fs.BoolVar(&o.markers, "markergene", false, "rank marker genes per cluster")
	fs.BoolVar(&o.progress, "progress", false, "show a progress view while clustering")
}

func newSingleCommand(ctx context.Context, log *logging.Logger, stdout io.Writer) *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "S",
		Short: "Cluster once with Secuer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolve(cmd.Flags(), o)
			if err != nil {
				return err
			}
			return execute(ctx, log, stdout, o, cfg, service.SingleRun{Params: cfg.Run().Params()})
		},
	}
	fs := cmd.Flags()
	fs.SetNormalizeFunc(normalizeFlag)
	addCommonFlags(fs, o, "output")
	fs.StringVar(&o.eskMethod, "eskm", domain.EstimateSubGraph, "cluster-count estimation: subGraph or BiGraph")
	fs.Float64Var(&o.eskResolution, "reso", 0.8, "resolution of the subGraph estimation")
	fs.IntVar(&o.gapth, "gapth", 4, "number of eigengaps inspected by the BiGraph estimation")
	fs.StringVar(&o.clusterMethod, "cm", domain.PartitionKmeans, "partitioning method: Kmeans or AnchorVote")
	fs.StringVar(&o.kernel, "kernel", domain.KernelLocalScaled, "bipartite graph kernel: localscaled or gaussian")
	return cmd
}

func newConsensusCommand(ctx context.Context, log *logging.Logger, stdout io.Writer) *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "C",
		Short: "Cluster M times with Secuer and build a consensus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolve(cmd.Flags(), o)
			if err != nil {
				return err
			}
			run := cfg.Run()
			mode := service.Ensemble{Params: run.Params(), Times: run.Times, Parallel: run.Parallel, Workers: run.Workers}
			return execute(ctx, log, stdout, o, cfg, mode)
		},
	}
	fs := cmd.Flags()
	fs.SetNormalizeFunc(normalizeFlag)
	addCommonFlags(fs, o, "outputConsens")
	fs.IntVarP(&o.times, "times", "M", 5, "number of ensemble runs")
	return cmd
}

func newInitCommand(log *logging.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default options document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := "secuer.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.Save(path); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
			}
			log.Infof("wrote default options to %s", path)
			return nil
		},
	}
}

// resolve layers the options document with the flags that were set.
func resolve(fs *pflag.FlagSet, o *options) (*config.Configuration, error) {
	if o.input == "" {
		return nil, fmt.Errorf("%w: inputfile is required", domain.ErrConfiguration)
	}
	values := map[string]any{
		"anchors":            o.anchors,
		"knn":                o.knn,
		"seed":               int(o.seed),
		"distance":           o.distance,
		"eskm":               o.eskMethod,
		"reso":               o.eskResolution,
		"gapth":              o.gapth,
		"kernel":             o.kernel,
		"cm":                 o.clusterMethod,
		"times":              o.times,
		"multiProcessState":  o.parallel,
		"num_multiProcesses": o.workers,
	}
	overrides := config.Overrides{}
	fs.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			overrides[key] = values[f.Name]
		}
	})
	path := o.yaml
	if path == "" {
		path = os.Getenv(yamlEnv)
	}
	return config.Resolve(overrides, path)
}

func execute(ctx context.Context, log *logging.Logger, stdout io.Writer, o *options, cfg *config.Configuration, mode service.Mode) error {
	r := cfg.Run()
	log.Infof("Your input parameters are: inputfile:%s, outfile:%s, distance:%s, p:%d, knn:%d, seed:%d, yaml:%s (stages: %s)",
		o.input, o.outfile, r.Distance, r.Anchors, r.KNN, r.Seed, cfg.Source(), strings.Join(cfg.Stages(), ", "))
	req := service.Request{
		Input:     o.input,
		OutDir:    o.outfile,
		Transpose: o.transpose,
		Plot:      o.plot,
		Markers:   o.markers,
		Mode:      mode,
		Config:    cfg,
	}

	ens, isEnsemble := mode.(service.Ensemble)
	if !o.progress || !isEnsemble {
		_, err := service.NewSecuerService(log, secuer.New(), nil, nil).Run(ctx, req)
		return err
	}
	return tui.Run(stdout, ens.Times, func(observer ensemble.Observer) error {
		_, err := service.NewSecuerService(log, secuer.New(), nil, observer).Run(ctx, req)
		return err
	})
}
