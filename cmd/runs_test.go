package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/enrich-cli/internal/store"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []store.RunSummary{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			Source:     "companies.csv",
			Template:   "{entity} headquarters",
			Total:      10,
			OK:         7,
			Partial:    2,
			Failed:     1,
			StartedAt:  now,
			FinishedAt: now.Add(2 * time.Minute),
		},
		{
			ID:         "def12345-6789-0000-0000-000000000000",
			Source:     "sheets://1AbCdEfGhIjKlMnOpQrStUvWxYz0123456789",
			Total:      4,
			OK:         1,
			Cancelled:  true,
			StartedAt:  now.Add(-time.Hour),
			FinishedAt: now.Add(-time.Hour + 30*time.Second),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "SOURCE")
	assert.Contains(t, output, "companies.csv")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "4 (cancelled)")
	assert.Contains(t, output, "...")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
