// Package snowflake generates time-ordered 63-bit ids: 41 bits of
// milliseconds since the epoch, 10 bits of node and 12 bits of sequence.
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	nodeBits  = 10
	stepBits  = 12
	nodeMax   = -1 ^ (-1 << nodeBits)
	stepMask  = -1 ^ (-1 << stepBits)
	timeShift = nodeBits + stepBits
	nodeShift = stepBits

	// Epoch is 2024-01-01 00:00:00 UTC in unix milliseconds.
	Epoch int64 = 1704067200000
)

// ErrNodeRange is returned for node numbers outside [0, 1023].
var ErrNodeRange = errors.New("snowflake: node number must be between 0 and 1023")

// Node hands out ids for one process. It is safe for concurrent use.
type Node struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
	node int64
	step int64
}

// NewNode returns a generator for the given node number.
func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, ErrNodeRange
	}
	return &Node{node: node, now: time.Now}, nil
}

// Generate returns the next id. Ids from one Node are strictly increasing,
// even if the wall clock steps backwards.
func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := n.now().UnixMilli()
	if ms < n.last {
		ms = n.last
	}

	if ms == n.last {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			// sequence exhausted for this millisecond
			for ms <= n.last {
				ms = n.now().UnixMilli()
			}
		}
	} else {
		n.step = 0
	}
	n.last = ms

	return ((ms - Epoch) << timeShift) | (n.node << nodeShift) | n.step
}

// Time extracts the millisecond timestamp an id was generated at.
func Time(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + Epoch).UTC()
}

// NodeOf extracts the node number an id was generated on.
func NodeOf(id int64) int64 {
	return (id >> nodeShift) & nodeMax
}
