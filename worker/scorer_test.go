// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xcherryio/creditbridge/config"
)

var defaultScorerConfig = config.ScorerConfig{Draws: 4, Low: 1, High: 10}

func sequenceDraw(values ...int) DrawFunc {
	i := 0
	return func(low, high int) int {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestRandomAverageScorerFloorsTheMean(t *testing.T) {
	scorer := NewRandomAverageScorerWithDraw(defaultScorerConfig, sequenceDraw(3, 7, 2, 8))
	result, err := scorer.Compute(context.Background(), ScoreInput{TaskId: "T1", DefaultScore: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Score)
	assert.Equal(t, []int{3, 7, 2, 8}, result.Draws)

	scorer = NewRandomAverageScorerWithDraw(defaultScorerConfig, sequenceDraw(10, 10, 10, 9))
	result, err = scorer.Compute(context.Background(), ScoreInput{TaskId: "T2"})
	require.NoError(t, err)
	assert.Equal(t, 9, result.Score)
}

func TestRandomAverageScorerStaysInRange(t *testing.T) {
	scorer := NewRandomAverageScorer(defaultScorerConfig)
	for i := 0; i < 1000; i++ {
		result, err := scorer.Compute(context.Background(), ScoreInput{TaskId: "T1"})
		require.NoError(t, err)
		assert.Len(t, result.Draws, 4)
		assert.GreaterOrEqual(t, result.Score, 1)
		assert.LessOrEqual(t, result.Score, 10)
		for _, d := range result.Draws {
			assert.GreaterOrEqual(t, d, 1)
			assert.LessOrEqual(t, d, 10)
		}
	}
}

func TestRandomAverageScorerRejectsBadDraws(t *testing.T) {
	scorer := NewRandomAverageScorerWithDraw(defaultScorerConfig, sequenceDraw(11))
	_, err := scorer.Compute(context.Background(), ScoreInput{TaskId: "T1"})
	assert.Error(t, err)

	scorer = NewRandomAverageScorer(config.ScorerConfig{Draws: 0, Low: 1, High: 10})
	_, err = scorer.Compute(context.Background(), ScoreInput{TaskId: "T1"})
	assert.Error(t, err)
}
