package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"secuer/internal/domain"
	"secuer/internal/ensemble"
)

func TestModelCountsRuns(t *testing.T) {
	var m tea.Model = New(4)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	m, _ = m.Update(RunMsg{Index: 0, Seed: 1, Clusters: 3})
	m, _ = m.Update(RunMsg{Index: 1, Seed: 2, Err: errors.New("did not converge")})

	got := m.(Model)
	require.Equal(t, 2, got.done)
	require.Equal(t, 1, got.failed)
	require.InDelta(t, 0.5, got.Percent(), 1e-12)

	view := got.View()
	require.Contains(t, view, "2/4 runs, 1 failed")
	require.Contains(t, view, "seed 2")

	m, cmd := m.Update(DoneMsg{})
	require.NotNil(t, cmd)
	require.True(t, m.(Model).finished)
	require.Contains(t, m.View(), "finished")
}

func TestModelKeepsRecentLines(t *testing.T) {
	var m tea.Model = New(20)
	for i := 0; i < 12; i++ {
		m, _ = m.Update(RunMsg(domain.RunOutcome{Index: i, Seed: int64(i + 1), Clusters: 2}))
	}
	require.Len(t, m.(Model).lines, maxLines)
}

func TestRunReturnsWorkError(t *testing.T) {
	boom := errors.New("boom")
	err := Run(discard{}, 2, func(observe ensemble.Observer) error {
		observe(domain.RunOutcome{Index: 0, Seed: 1, Clusters: 2})
		return boom
	})
	require.ErrorIs(t, err, boom)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
