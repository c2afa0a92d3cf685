package text

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/NKID00/aidb"
	"github.com/NKID00/aidb/alloc"
	"github.com/NKID00/aidb/block"
	"github.com/NKID00/aidb/mem"
	"github.com/stretchr/testify/require"
)

func newChain(t *testing.T) (*Chain, *alloc.List, aidb.Device) {
	t.Helper()
	var f mem.File
	dev, err := block.New(&f, 512, nil)
	require.NoError(t, err)
	_, err = dev.Grow() // block 0
	require.NoError(t, err)

	list, err := alloc.Load(dev, aidb.NilBlock, 0)
	require.NoError(t, err)
	return New(dev, list), list, dev
}

func TestRoundTripSingleBlock(t *testing.T) {
	c, _, _ := newChain(t)

	body := []byte("a short string, longer than 8 bytes")
	start, err := c.Write(body)
	require.NoError(t, err)

	got, err := c.Read(start, len(body))
	require.NoError(t, err)
	require.Equal(t, body, got)
}

func TestRoundTripAcrossBlocks(t *testing.T) {
	c, _, dev := newChain(t)

	// 504 payload bytes per 512-byte block; 2000 bytes span 4 blocks.
	body := bytes.Repeat([]byte("0123456789"), 200)
	start, err := c.Write(body)
	require.NoError(t, err)
	require.EqualValues(t, 5, dev.Count())

	got, err := c.Read(start, len(body))
	require.NoError(t, err)
	require.Equal(t, body, got)
}

func TestRoundTripExactCapacity(t *testing.T) {
	c, _, _ := newChain(t)

	for _, n := range []int{504, 1008} {
		body := bytes.Repeat([]byte{'x'}, n)
		start, err := c.Write(body)
		require.NoError(t, err)

		got, err := c.Read(start, n)
		require.NoError(t, err)
		require.Equal(t, body, got, "length %d", n)
	}
}

func TestWriteLength20(t *testing.T) {
	c, _, dev := newChain(t)
	before := dev.Count()

	body := []byte("exactly twenty bytes")
	require.Len(t, body, 20)

	start, err := c.Write(body)
	require.NoError(t, err)
	require.GreaterOrEqual(t, dev.Count(), before+1)

	got, err := c.Read(start, 20)
	require.NoError(t, err)
	require.Equal(t, body, got)
}

func TestConcurrentReads(t *testing.T) {
	c, _, _ := newChain(t)

	bodyA := bytes.Repeat([]byte("AAAA"), 300)
	bodyB := bytes.Repeat([]byte("BBBB"), 500)
	startA, err := c.Write(bodyA)
	require.NoError(t, err)
	startB, err := c.Write(bodyB)
	require.NoError(t, err)

	// Parallel readers of one Chain must not bleed into each other.
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				gotA, err := c.Read(startA, len(bodyA))
				if err != nil {
					errs <- err
					return
				}
				gotB, err := c.Read(startB, len(bodyB))
				if err != nil {
					errs <- err
					return
				}
				if !bytes.Equal(gotA, bodyA) || !bytes.Equal(gotB, bodyB) {
					errs <- errors.New("chain bytes crossed between readers")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestReadTruncatedChain(t *testing.T) {
	c, _, dev := newChain(t)

	body := bytes.Repeat([]byte{'y'}, 600) // two blocks
	start, err := c.Write(body)
	require.NoError(t, err)

	// Cut the chain: clear the first block's next pointer.
	buf := make([]byte, 512)
	require.NoError(t, dev.Read(start, buf))
	binary.LittleEndian.PutUint64(buf, 0)
	require.NoError(t, dev.Write(start, buf))

	_, err = c.Read(start, 600)
	require.ErrorIs(t, err, aidb.ErrTextChainTruncated)
}

func TestFreeReclaimsWholeChain(t *testing.T) {
	c, list, _ := newChain(t)

	body := bytes.Repeat([]byte{'z'}, 1500) // three blocks
	start, err := c.Write(body)
	require.NoError(t, err)
	require.Zero(t, list.Count())

	require.NoError(t, c.Free(start))
	require.EqualValues(t, 3, list.Count())
}

func TestWriteEmpty(t *testing.T) {
	c, _, _ := newChain(t)
	_, err := c.Write(nil)
	require.Error(t, err)
}
