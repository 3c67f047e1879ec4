package charset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_CharSet_Set_mergesAdjacent(t *testing.T) {
	testCases := []struct {
		name   string
		adds   []int
		expect []Range
	}{
		{
			name:   "single value",
			adds:   []int{5},
			expect: []Range{{From: 5, To: 5}},
		},
		{
			name:   "ascending run merges into one range",
			adds:   []int{1, 2, 3},
			expect: []Range{{From: 1, To: 3}},
		},
		{
			name:   "descending run merges into one range",
			adds:   []int{3, 2, 1},
			expect: []Range{{From: 1, To: 3}},
		},
		{
			name:   "bridges a gap of one",
			adds:   []int{1, 3, 2},
			expect: []Range{{From: 1, To: 3}},
		},
		{
			name:   "disjoint values stay separate",
			adds:   []int{1, 10},
			expect: []Range{{From: 1, To: 1}, {From: 10, To: 10}},
		},
		{
			name:   "fills gap between two ranges, coalescing them",
			adds:   []int{1, 2, 10, 11, 3},
			expect: []Range{{From: 1, To: 3}, {From: 10, To: 11}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			cs := New()
			for _, v := range tc.adds {
				cs.Set(v)
			}

			assert.Equal(tc.expect, cs.Ranges())
		})
	}
}

func Test_CharSet_Get(t *testing.T) {
	assert := assert.New(t)

	cs := New()
	cs.Set(1)
	cs.Set(2)
	cs.Set(3)
	cs.Set(10)

	assert.True(cs.Get(1))
	assert.True(cs.Get(2))
	assert.True(cs.Get(3))
	assert.True(cs.Get(10))
	assert.False(cs.Get(0))
	assert.False(cs.Get(4))
	assert.False(cs.Get(9))
	assert.False(cs.Get(11))
}

func Test_CharSet_Or(t *testing.T) {
	assert := assert.New(t)

	a := New()
	a.Set(1)
	a.Set(2)

	b := New()
	b.Set(3)
	b.Set(20)

	a.Or(b)

	assert.Equal([]Range{{From: 1, To: 3}, {From: 20, To: 20}}, a.Ranges())
}

func Test_CharSet_And(t *testing.T) {
	assert := assert.New(t)

	a := New()
	a.Set(1)
	a.Set(2)
	a.Set(3)

	b := New()
	b.Set(2)
	b.Set(3)
	b.Set(4)

	a.And(b)

	assert.Equal([]Range{{From: 2, To: 3}}, a.Ranges())
}

func Test_CharSet_Subtract(t *testing.T) {
	assert := assert.New(t)

	a := New()
	a.Set(1)
	a.Set(2)
	a.Set(3)

	b := New()
	b.Set(2)

	a.Subtract(b)

	assert.Equal([]Range{{From: 1, To: 1}, {From: 3, To: 3}}, a.Ranges())
}

func Test_CharSet_Includes_and_Intersects(t *testing.T) {
	assert := assert.New(t)

	a := New()
	a.Fill()

	b := New()
	b.Set(65)
	b.Set(90)

	assert.True(a.Includes(b))
	assert.True(a.Intersects(b))

	c := New()
	c.Set(1)
	assert.False(b.Includes(c))
	assert.False(b.Intersects(c))
}

func Test_CharSet_Equal(t *testing.T) {
	assert := assert.New(t)

	a := New()
	a.Set(1)
	a.Set(2)

	b := New()
	b.Set(2)
	b.Set(1)

	assert.True(a.Equal(b))

	b.Set(3)
	assert.False(a.Equal(b))
}

func Test_CharSet_First_emptySet(t *testing.T) {
	assert := assert.New(t)

	cs := New()
	assert.Equal(-1, cs.First())

	cs.Set(42)
	assert.Equal(42, cs.First())
}

func Test_CharSet_Elements(t *testing.T) {
	assert := assert.New(t)

	cs := New()
	cs.Set(1)
	cs.Set(2)
	cs.Set(3)
	cs.Set(10)

	assert.Equal(4, cs.Elements())
}
