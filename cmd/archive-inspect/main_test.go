package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healnexus/internal/models"
)

func sample() []models.Reading {
	return []models.Reading{
		{Snapshot: models.Snapshot{BPM: 70, Temperature: 36.6, Steps: 10}, Timestamp: 1_700_000_000_000},
		{Snapshot: models.Snapshot{BPM: 72, Temperature: 36.7, Steps: 12}, Timestamp: 1_700_000_003_000},
	}
}

func TestSummarize(t *testing.T) {
	var buf bytes.Buffer
	summarize(&buf, "x.hnx", 123, sample(), 1)

	out := buf.String()
	assert.Contains(t, out, "x.hnx: 2 readings in 123 bytes")
	assert.Contains(t, out, "(3s)")
	assert.Contains(t, out, "Timestamp: 1700000000000, BPM: 70")
	assert.NotContains(t, out, "BPM: 72")
}

func TestSummarize_Empty(t *testing.T) {
	var buf bytes.Buffer
	summarize(&buf, "x.hnx", 32, nil, 3)
	assert.Equal(t, "x.hnx: 0 readings in 32 bytes\n", buf.String())
}

func TestDumpJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, dumpJSON(&buf, sample()))

	var got []models.Reading
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sample(), got)
}
