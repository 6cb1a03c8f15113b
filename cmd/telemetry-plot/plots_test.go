package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/erov.guidance/internal/telemetry"
)

func TestGeneratePlots(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var records []telemetry.Record
	for i := 0; i < 20; i++ {
		e := 1 - float64(i)*0.05
		records = append(records, telemetry.Record{
			Time:      start.Add(time.Duration(i) * 100 * time.Millisecond),
			Error:     telemetry.Axes{X: e, Y: -e / 2, Z: 0.1, Yaw: 0.05},
			Output:    telemetry.Axes{X: -e * 10},
			Commanded: telemetry.Axes{X: -e * 100, Z: 500},
			Distance:  e,
		})
	}

	dir := filepath.Join(t.TempDir(), "session")
	files, err := generatePlots(records, dir)
	require.NoError(t, err)
	require.Len(t, files, 4)
	for _, f := range files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0), f)
	}
	assert.Equal(t, filepath.Join(dir, "distance.png"), files[3])
}

func TestGeneratePlots_Empty(t *testing.T) {
	_, err := generatePlots(nil, t.TempDir())
	assert.Error(t, err)
}
