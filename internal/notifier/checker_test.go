package notifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridserve/internal/models"
)

func TestPageSize(t *testing.T) {
	assert.Equal(t, 1, pageSize(&models.Subscription{EntityLimit: 0}))
	assert.Equal(t, 1, pageSize(&models.Subscription{EntityLimit: -3}))
	assert.Equal(t, 25, pageSize(&models.Subscription{EntityLimit: 25}))
	assert.Equal(t, maxNotificationPage, pageSize(&models.Subscription{EntityLimit: 5000}))
}

func TestNotifyPages(t *testing.T) {
	entities := []int{1, 2, 3, 4, 5}
	var pages [][]int
	err := notifyPages(entities, 2, func(page []int) error {
		pages = append(pages, append([]int(nil), page...))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, pages)
}

func TestNotifyPagesEmpty(t *testing.T) {
	calls := 0
	err := notifyPages(nil, 10, func(page []int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestNotifyPagesStopsOnError(t *testing.T) {
	calls := 0
	err := notifyPages([]int{1, 2, 3}, 1, func(page []int) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

func TestConditionMatch(t *testing.T) {
	unconditional := &models.Subscription{}
	assert.True(t, conditionMatch(unconditional, 0))

	gated := &models.Subscription{Conditions: []models.SubscriptionCondition{
		{LowerThreshold: 100, UpperThreshold: 500},
	}}
	assert.True(t, conditionMatch(gated, 99), "below the band notifies")
	assert.True(t, conditionMatch(gated, 501), "above the band notifies")
	assert.False(t, conditionMatch(gated, 100), "band edges are quiet")
	assert.False(t, conditionMatch(gated, 500))
	assert.False(t, conditionMatch(gated, 300))
}
