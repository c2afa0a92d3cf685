// Package text stores strings too long to inline in a row, as forward
// chains of text blocks. Chains are immutable once written: updating a
// stored string frees the old chain and writes a new one, so a reader
// never observes a partially edited chain.
package text

import (
	"encoding/binary"
	"fmt"

	"github.com/NKID00/aidb"
)

type BlockIndex = aidb.BlockIndex

// headSize is the per-block overhead: the 8-byte next pointer.
const headSize = 8

// Chain reads and writes text chains through a device, taking fresh
// blocks from an allocator.
type Chain struct {
	dev   aidb.Device
	alloc aidb.Allocator

	// buf backs Write and Free only. Read allocates per call so
	// concurrent readers can share one Chain.
	buf []byte
}

func New(dev aidb.Device, alloc aidb.Allocator) *Chain {
	return &Chain{dev: dev, alloc: alloc, buf: make([]byte, dev.BlockSize())}
}

// payload is the text capacity of one block.
func (c *Chain) payload() int {
	return c.dev.BlockSize() - headSize
}

// Write stores body as a chain of text blocks, filling each block to
// capacity before chaining to the next, and returns the first block's
// index. Blocks are written tail first so every next pointer is final
// by the time its block hits the device.
func (c *Chain) Write(body []byte) (start BlockIndex, err error) {
	if len(body) == 0 {
		return 0, fmt.Errorf("text.Write: empty body")
	}

	payload := c.payload()
	tail := len(body) % payload
	if tail == 0 {
		tail = payload
	}

	next := aidb.NilBlock
	for beg := len(body) - tail; ; beg -= payload {
		var index BlockIndex
		if index, err = c.alloc.Allocate(); err != nil {
			return
		}

		clear(c.buf)
		binary.LittleEndian.PutUint64(c.buf, uint64(next))
		copy(c.buf[headSize:], body[beg:min(beg+payload, len(body))])
		if err = c.dev.Write(index, c.buf); err != nil {
			return
		}

		next = index
		if beg == 0 {
			return index, nil
		}
	}
}

// Read reconstructs the string of the declared length starting at
// start. A chain that ends before length bytes were gathered fails with
// aidb.ErrTextChainTruncated.
func (c *Chain) Read(start BlockIndex, length int) ([]byte, error) {
	body := make([]byte, 0, length)
	payload := c.payload()
	buf := make([]byte, c.dev.BlockSize())

	for index := start; len(body) < length; {
		if index == aidb.NilBlock {
			return nil, fmt.Errorf("%w: start %d, got %d of %d bytes",
				aidb.ErrTextChainTruncated, start, len(body), length)
		}
		if err := c.dev.Read(index, buf); err != nil {
			return nil, err
		}
		body = append(body, buf[headSize:headSize+min(payload, length-len(body))]...)
		index = BlockIndex(binary.LittleEndian.Uint64(buf))
	}
	return body, nil
}

// Free reclaims every block of the chain starting at start.
func (c *Chain) Free(start BlockIndex) error {
	for index := start; index != aidb.NilBlock; {
		if err := c.dev.Read(index, c.buf); err != nil {
			return err
		}
		next := BlockIndex(binary.LittleEndian.Uint64(c.buf))
		if err := c.alloc.Free(index); err != nil {
			return err
		}
		index = next
	}
	return nil
}
