package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/holoclient/internal/holo"
)

func TestDeterministicClock_StartsAtEpoch(t *testing.T) {
	clock := NewDeterministicClock(time.Time{})
	assert.Equal(t, Epoch, clock.Now())
}

func TestDeterministicClock_Advance(t *testing.T) {
	clock := NewDeterministicClock(time.Time{})

	clock.Advance(time.Minute)
	assert.Equal(t, Epoch.Add(time.Minute), clock.Now())

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestDeterministicClock_ConcurrentAdvance(t *testing.T) {
	clock := NewDeterministicClock(time.Time{})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(100*time.Second), clock.Now())
}

func TestSequentialNonces(t *testing.T) {
	nonces := NewSequentialNonces()

	first, err := nonces.Next()
	require.NoError(t, err)
	second, err := nonces.Next()
	require.NoError(t, err)

	assert.Len(t, first, holo.NonceLen)
	assert.Equal(t, byte(1), first[7])
	assert.Equal(t, byte(2), second[7])
	assert.NotEqual(t, first, second)
}

func TestFixtures(t *testing.T) {
	cell := CellID(1, 2)
	require.NoError(t, cell.DnaHash.Validate())
	require.NoError(t, cell.AgentPubKey.Validate())

	typ, ok := cell.DnaHash.Type()
	require.True(t, ok)
	assert.Equal(t, holo.HashTypeDna, typ)
	assert.True(t, CellID(1, 2).Equal(cell))
	assert.False(t, CellID(1, 3).Equal(cell))
}
