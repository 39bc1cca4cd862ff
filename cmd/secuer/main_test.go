package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testOptions = `
gene:
  min_counts: 1
  min_cells: null
  max_counts: null
  max_cells: null
cell:
  min_counts: 1
  min_genes: null
  max_counts: null
  max_genes: null
norm:
  target_sum: 10000
hvg:
  min_mean: 0.0125
  max_mean: 3
  min_disp: 0.5
  flavor: seurat
  n_top_genes: 12
  span: 0.3
pca:
  svd_solver: arpack
  n_comps: 8
`

func writeInputs(t *testing.T) (input, doc, root string) {
	t.Helper()
	root = t.TempDir()
	rng := rand.New(rand.NewSource(3))
	var b strings.Builder
	b.WriteString("cell")
	for j := 0; j < 30; j++ {
		fmt.Fprintf(&b, ",g%d", j)
	}
	b.WriteString("\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "c%d", i)
		for j := 0; j < 30; j++ {
			base := 3
			if (i < 30) == (j < 15) {
				base = 40
			}
			fmt.Fprintf(&b, ",%d", rng.Intn(base)+1)
		}
		b.WriteString("\n")
	}
	input = filepath.Join(root, "counts.csv")
	require.NoError(t, os.WriteFile(input, []byte(b.String()), 0o644))
	doc = filepath.Join(root, "opts.yaml")
	require.NoError(t, os.WriteFile(doc, []byte(testOptions), 0o644))
	return input, doc, root
}

func TestNoSubcommandPrintsHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), nil, &out, &errOut)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "version: 1.0.12")
	require.Contains(t, out.String(), "Usage:")
}

func TestSingleRunCommand(t *testing.T) {
	input, doc, root := writeInputs(t)
	out := filepath.Join(root, "result")
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"S", "-i", input, "-o", out, "--yaml", doc, "-p", "20", "--knn", "5"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.FileExists(t, filepath.Join(out, "SecuerResult.txt"))
	require.Contains(t, stderr.String(), "Finished: The secuer finds")
	require.Contains(t, stderr.String(), "(stages: cell, gene, hvg, norm, pca)")
}

func TestConsensusCommand(t *testing.T) {
	input, doc, root := writeInputs(t)
	out := filepath.Join(root, "consensus")
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"C", "-i", input, "-o", out, "--yaml", doc, "-p", "20", "--knn", "5", "-M", "3"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.FileExists(t, filepath.Join(out, "SecuerConsenResult.txt"))
}

func TestFatalErrorsExitOne(t *testing.T) {
	input, doc, root := writeInputs(t)
	occupied := filepath.Join(root, "occupied")
	require.NoError(t, os.WriteFile(occupied, []byte("x"), 0o644))

	cases := map[string][]string{
		"missing input":  {"S", "--yaml", doc},
		"output is file": {"S", "-i", input, "-o", occupied, "--yaml", doc},
		"bad distance":   {"C", "-i", input, "--yaml", doc, "-d", "hamming"},
		"bad anchors":    {"S", "-i", input, "--yaml", doc, "-p", "0"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			require.Equal(t, 1, run(context.Background(), args, &stdout, &stderr))
			require.NotEmpty(t, stderr.String())
		})
	}
}

func TestInitWritesDefaultDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "secuer.yaml")
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"init", path}, &stdout, &stderr))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "secuer:")
}

func TestYamlFromEnvironment(t *testing.T) {
	input, doc, root := writeInputs(t)
	t.Setenv(yamlEnv, doc)
	out := filepath.Join(root, "env")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"S", "-i", input, "-o", out, "-p", "20", "--knn", "5", "--eskm", "BiGraph"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.FileExists(t, filepath.Join(out, "SecuerResult.scdb"))
}

func TestLegacyFlagSpellings(t *testing.T) {
	input, doc, root := writeInputs(t)
	var stdout, stderr bytes.Buffer

	out := filepath.Join(root, "legacy-single")
	code := run(context.Background(), []string{"S", "-i", input, "-o", out, "--yaml", doc, "-p", "20", "--knn", "5", "--Gaussiankernel", "gaussian"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.FileExists(t, filepath.Join(out, "SecuerResult.txt"))

	out = filepath.Join(root, "legacy-consensus")
	code = run(context.Background(), []string{"C", "-i", input, "-o", out, "--yaml", doc, "-p", "20", "--knn", "5", "--Times", "2"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.FileExists(t, filepath.Join(out, "SecuerConsenResult.txt"))

	code = run(context.Background(), []string{"S", "-i", input, "--yaml", doc, "--Gaussiankernel", "cosine"}, &stdout, &stderr)
	require.Equal(t, 1, code)
}

func TestNormalizeFlagMapsLegacyNames(t *testing.T) {
	require.Equal(t, "kernel", string(normalizeFlag(nil, "Gaussiankernel")))
	require.Equal(t, "times", string(normalizeFlag(nil, "Times")))
	require.Equal(t, "knn", string(normalizeFlag(nil, "knn")))
}
