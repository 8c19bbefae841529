package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"spikeingest/internal/model"
)

type staticLister struct {
	symbols map[model.Market][]string
}

func (l staticLister) List(ctx context.Context, market model.Market) ([]string, error) {
	return l.symbols[market], nil
}

func TestRegistry_EmitsDeltaOnFirstRefresh(t *testing.T) {
	var deltas []Delta
	r := New(func(d Delta) { deltas = append(deltas, d) })
	r.Register(model.ExchangeBinance, staticLister{symbols: map[model.Market][]string{
		model.MarketSpot: {"BTCUSDT", "ETHUSDT"},
	}})

	r.RefreshOnce(context.Background())

	assert.Len(t, deltas, 1)
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, deltas[0].Added)
	assert.Empty(t, deltas[0].Removed)
}

func TestRegistry_EmitsAddAndRemoveOnSubsequentRefresh(t *testing.T) {
	lister := &staticListerPtr{symbols: map[model.Market][]string{
		model.MarketSpot: {"BTCUSDT", "ETHUSDT"},
	}}
	var deltas []Delta
	r := New(func(d Delta) { deltas = append(deltas, d) })
	r.Register(model.ExchangeBinance, lister)

	r.RefreshOnce(context.Background())
	lister.symbols[model.MarketSpot] = []string{"BTCUSDT", "SOLUSDT"}
	r.RefreshOnce(context.Background())

	assert.Len(t, deltas, 2)
	assert.Equal(t, []string{"SOLUSDT"}, deltas[1].Added)
	assert.Equal(t, []string{"ETHUSDT"}, deltas[1].Removed)
}

func TestRegistry_NoDeltaEmittedWhenUnchanged(t *testing.T) {
	var deltas []Delta
	r := New(func(d Delta) { deltas = append(deltas, d) })
	r.Register(model.ExchangeBinance, staticLister{symbols: map[model.Market][]string{
		model.MarketSpot: {"BTCUSDT"},
	}})

	r.RefreshOnce(context.Background())
	r.RefreshOnce(context.Background())

	assert.Len(t, deltas, 1)
}

func TestSet_Filter(t *testing.T) {
	s := newSet()
	s.replace([]string{"BTCUSDT", "ETHUSDT"})

	assert.ElementsMatch(t, []string{"BTCUSDT"}, s.Filter([]string{"BTCUSDT", "SOLUSDT"}))
	assert.True(t, s.Contains("ETHUSDT"))
	assert.False(t, s.Contains("SOLUSDT"))
}

type staticListerPtr struct {
	symbols map[model.Market][]string
}

func (l *staticListerPtr) List(ctx context.Context, market model.Market) ([]string, error) {
	return l.symbols[market], nil
}
