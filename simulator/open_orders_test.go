package simulator

import (
	"testing"
	"time"

	"github.com/alexherrero/chronoline/event"
	"github.com/stretchr/testify/assert"
)

func TestOpenOrderBook_OrdersForSortsByCreatedAt(t *testing.T) {
	book := NewOpenOrderBook()
	now := time.Now()
	later := &event.OrderPayload{SID: 1, Amount: 10, CreatedAt: now.Add(time.Minute)}
	earlier := &event.OrderPayload{SID: 1, Amount: 5, CreatedAt: now}
	book.Add(later)
	book.Add(earlier)

	orders, ok := book.OrdersFor(1)
	assert.True(t, ok)
	assert.Equal(t, earlier, orders[0])
	assert.Equal(t, later, orders[1])
}

func TestOpenOrderBook_OrdersForEmpty(t *testing.T) {
	book := NewOpenOrderBook()
	orders, ok := book.OrdersFor(99)
	assert.False(t, ok)
	assert.Nil(t, orders)
}

func TestOpenOrderBook_PruneDropsWhenEmpty(t *testing.T) {
	book := NewOpenOrderBook()
	book.Add(&event.OrderPayload{SID: 1, Amount: 5})

	book.Prune(1, nil)

	_, ok := book.OrdersFor(1)
	assert.False(t, ok)
}

func TestOpenOrderBook_PruneKeepsSurvivors(t *testing.T) {
	book := NewOpenOrderBook()
	o := &event.OrderPayload{SID: 1, Amount: 5}
	book.Add(o)

	book.Prune(1, []*event.OrderPayload{o})

	orders, ok := book.OrdersFor(1)
	assert.True(t, ok)
	assert.Len(t, orders, 1)
}
