package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taranswap/taran/client"
)

func TestSwapMatchesFilters(t *testing.T) {
	completed := "completed"
	rejected := "rejected"
	reason := "insufficient balance in your mobile money account"

	tests := []struct {
		name        string
		swap        *client.Swap
		filters     []string
		expectMatch bool
	}{
		{
			name:        "no filters always match",
			swap:        &client.Swap{ID: "a", Outcome: &completed},
			filters:     nil,
			expectMatch: true,
		},
		{
			name:        "outcome match",
			swap:        &client.Swap{ID: "a", Outcome: &completed},
			filters:     []string{`.outcome == "completed"`},
			expectMatch: true,
		},
		{
			name:        "outcome mismatch",
			swap:        &client.Swap{ID: "a", Outcome: &rejected},
			filters:     []string{`.outcome == "completed"`},
			expectMatch: false,
		},
		{
			name:        "failure reason contains",
			swap:        &client.Swap{ID: "a", Outcome: &rejected, FailureReason: &reason},
			filters:     []string{`.failure_reason | contains("insufficient balance")`},
			expectMatch: true,
		},
		{
			name: "all filters must match",
			swap: &client.Swap{ID: "a", Direction: "local_to_crypto", Outcome: &completed},
			filters: []string{
				`.outcome == "completed"`,
				`.direction == "crypto_to_local"`,
			},
			expectMatch: false,
		},
		{
			name:        "missing field is null not error",
			swap:        &client.Swap{ID: "a"},
			filters:     []string{`.outcome == null`},
			expectMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := compileJQFilters(tt.filters)
			require.NoError(t, err)

			matched, err := swapMatchesFilters(tt.swap, compiled)
			require.NoError(t, err)
			assert.Equal(t, tt.expectMatch, matched)
		})
	}
}

func TestCompileJQFilters_InvalidExpression(t *testing.T) {
	_, err := compileJQFilters([]string{`.outcome ==`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}
