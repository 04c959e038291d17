// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/xcherryio/creditbridge/config"
)

type ScoreInput struct {
	TaskId       string
	DefaultScore int
}

type ScoreResult struct {
	Score int
	// Draws are the raw values the score is computed from
	Draws []int
}

type Scorer interface {
	Compute(ctx context.Context, input ScoreInput) (ScoreResult, error)
}

// DrawFunc returns an integer in [low, high]
type DrawFunc func(low, high int) int

func UniformDraw(low, high int) int {
	return low + rand.Intn(high-low+1)
}

// RandomAverageScorer draws N integers uniformly and scores their floored mean.
// The default score of the input is ignored.
type RandomAverageScorer struct {
	draws int
	low   int
	high  int
	draw  DrawFunc
}

func NewRandomAverageScorer(cfg config.ScorerConfig) *RandomAverageScorer {
	return NewRandomAverageScorerWithDraw(cfg, UniformDraw)
}

func NewRandomAverageScorerWithDraw(cfg config.ScorerConfig, draw DrawFunc) *RandomAverageScorer {
	return &RandomAverageScorer{
		draws: cfg.Draws,
		low:   cfg.Low,
		high:  cfg.High,
		draw:  draw,
	}
}

func (s *RandomAverageScorer) Compute(_ context.Context, _ ScoreInput) (ScoreResult, error) {
	if s.draws <= 0 || s.low > s.high {
		return ScoreResult{}, fmt.Errorf("invalid scorer, %v draws in [%v, %v]", s.draws, s.low, s.high)
	}
	draws := make([]int, s.draws)
	sum := 0
	for i := range draws {
		d := s.draw(s.low, s.high)
		if d < s.low || d > s.high {
			return ScoreResult{}, fmt.Errorf("draw %v is out of [%v, %v]", d, s.low, s.high)
		}
		draws[i] = d
		sum += d
	}
	return ScoreResult{
		Score: floorDiv(sum, len(draws)),
		Draws: draws,
	}, nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
