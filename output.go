//go:build linux
// +build linux

package reactord

import (
	"container/list"
)

// OutputNode is a tagged union: either an owned byte slice or a shared mmap
// Resource, per spec.md §3. Exactly one of owned/resource is non-nil.
type OutputNode struct {
	owned    []byte
	resource *Resource
	offset   int
}

// length returns the total byte length of the node's payload.
func (n *OutputNode) length() int {
	if n.resource != nil {
		return n.resource.Len()
	}
	return len(n.owned)
}

// remaining returns length - offset.
func (n *OutputNode) remaining() int {
	return n.length() - n.offset
}

// bytes returns the unread tail of the node's payload as a slice, valid
// until the node is advanced or the chain is mutated again.
func (n *OutputNode) bytes() []byte {
	if n.resource != nil {
		return n.resource.Bytes()[n.offset:]
	}
	return n.owned[n.offset:]
}

// OutputChain is a FIFO gather-write queue of heterogeneous nodes with a
// cached total_remaining counter, per spec.md §4.3. Not safe for concurrent
// use: all mutation happens on the Connection's owning loop thread.
type OutputChain struct {
	nodes          list.List // of *OutputNode
	totalRemaining int
}

// NewOutputChain returns an empty chain.
func NewOutputChain() *OutputChain {
	return &OutputChain{}
}

// PushOwned appends an owned-byte node.
func (c *OutputChain) PushOwned(b []byte) {
	if len(b) == 0 {
		return
	}
	c.nodes.PushBack(&OutputNode{owned: b})
	c.totalRemaining += len(b)
}

// PushMapped appends a node backed by a shared mmap Resource, retaining a
// strong reference for the node's lifetime (released on pop, see advance).
func (c *OutputChain) PushMapped(r *Resource) {
	if r == nil || r.Len() == 0 {
		return
	}
	r.retain()
	c.nodes.PushBack(&OutputNode{resource: r})
	c.totalRemaining += r.Len()
}

// IsEmpty reports whether the chain has no unsent bytes.
func (c *OutputChain) IsEmpty() bool {
	return c.totalRemaining == 0
}

// TotalRemaining returns the cached Σ node.remaining() count.
func (c *OutputChain) TotalRemaining() int {
	return c.totalRemaining
}

// FillIOVectors produces up to maxCount byte slices pointing at the unread
// portions of the leading nodes, in FIFO order, for use as scatter/gather
// write vectors.
func (c *OutputChain) FillIOVectors(maxCount int) [][]byte {
	vecs := make([][]byte, 0, maxCount)
	for e := c.nodes.Front(); e != nil && len(vecs) < maxCount; e = e.Next() {
		node := e.Value.(*OutputNode)
		vecs = append(vecs, node.bytes())
	}
	return vecs
}

// Advance consumes n bytes from the head of the chain, popping any node
// that becomes fully consumed and releasing its mmap Resource reference (if
// any). Precondition n <= TotalRemaining(); on violation the chain is
// defensively cleared per spec.md §4.3.
func (c *OutputChain) Advance(n int) {
	if n > c.totalRemaining {
		c.clear()
		return
	}
	remaining := n
	for remaining > 0 {
		e := c.nodes.Front()
		if e == nil {
			break
		}
		node := e.Value.(*OutputNode)
		avail := node.remaining()
		if remaining < avail {
			node.offset += remaining
			c.totalRemaining -= remaining
			remaining = 0
			break
		}
		remaining -= avail
		c.totalRemaining -= avail
		c.nodes.Remove(e)
		if node.resource != nil {
			node.resource.release()
		}
	}
}

// clear drops every node (releasing mmap references) and zeroes the counter.
func (c *OutputChain) clear() {
	for e := c.nodes.Front(); e != nil; e = e.Next() {
		node := e.Value.(*OutputNode)
		if node.resource != nil {
			node.resource.release()
		}
	}
	c.nodes.Init()
	c.totalRemaining = 0
}
