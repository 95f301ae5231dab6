// Package fdt walks a Flattened Device Tree blob handed to kernel_main
// by firmware. The blob is trusted input: an unknown struct token is a
// firmware/loader bug, not a recoverable condition, so it panics with
// the offset rather than returning an error (spec.md §4.1 Failure).
package fdt

import (
	"fmt"

	"github.com/avirt/allora-kernel/internal/endian"
)

// be32 decodes a big-endian 32-bit field through endian.U32[Big], the
// wrapper spec.md module 1 names for on-wire fields, rather than
// calling encoding/binary directly at each call site.
func be32(b []byte) uint32 {
	return endian.U32[endian.Big](b[:4]).Native()
}

// token values in the struct stream (spec.md §3).
const (
	tokenBeginNode = 0x1
	tokenEndNode   = 0x2
	tokenProp      = 0x3
	tokenNOP       = 0x4
	tokenEnd       = 0x9
)

const magic = 0xd00dfeed

// Header is the big-endian fixed header at the start of the blob.
type Header struct {
	Magic                 uint32
	TotalSize             uint32
	StructOffset          uint32
	StringsOffset         uint32
	MemReserveMapOffset   uint32
	Version               uint32
	LastCompatibleVersion uint32
	BootCPUID             uint32
	StringsSize           uint32
	StructSize            uint32
}

// Tree is a parsed view over a device tree blob. It holds no parsed
// state beyond the header: every node/property walk re-reads the
// backing bytes, which is deliberately cheap and non-restartable
// (DESIGN NOTES) rather than cached.
type Tree struct {
	blob []byte
	hdr  Header
}

// New parses the 40-byte header at the start of blob and validates the
// magic number. It does not walk the struct section yet.
func New(blob []byte) (*Tree, error) {
	if len(blob) < 40 {
		return nil, fmt.Errorf("fdt: blob too small: %d bytes", len(blob))
	}

	hdr := Header{
		Magic:                 be32(blob[0:4]),
		TotalSize:             be32(blob[4:8]),
		StructOffset:          be32(blob[8:12]),
		StringsOffset:         be32(blob[12:16]),
		MemReserveMapOffset:   be32(blob[16:20]),
		Version:               be32(blob[20:24]),
		LastCompatibleVersion: be32(blob[24:28]),
		BootCPUID:             be32(blob[28:32]),
		StringsSize:           be32(blob[32:36]),
		StructSize:            be32(blob[36:40]),
	}

	if hdr.Magic != magic {
		return nil, fmt.Errorf("fdt: bad magic %#x", hdr.Magic)
	}

	return &Tree{blob: blob, hdr: hdr}, nil
}

// Root returns the first BEGIN_NODE in the struct stream.
func (t *Tree) Root() (Node, bool) {
	it := t.nodesFrom(t.hdr.StructOffset, 0)
	return it.Next()
}

// align4 rounds off up to the next 4-byte boundary.
func align4(off uint32) uint32 {
	return (off + 3) &^ 3
}

func (t *Tree) u32(off uint32) uint32 {
	return be32(t.blob[off : off+4])
}

// cstring returns the NUL-terminated string starting at off, and the
// offset one past the terminating NUL.
func (t *Tree) cstring(off uint32) ([]byte, uint32) {
	start := off
	for t.blob[off] != 0 {
		off++
	}

	return t.blob[start:off], off + 1
}

// Prop is a single device tree property: a name (interned in the
// strings section) and its raw value bytes.
type Prop struct {
	Name  []byte
	Value []byte
}

// AsU32s decodes Value as a sequence of big-endian 32-bit cells, used
// for properties like `reg` and `interrupts`.
func (p Prop) AsU32s() []uint32 {
	out := make([]uint32, len(p.Value)/4)
	for i := range out {
		out[i] = be32(p.Value[i*4 : i*4+4])
	}

	return out
}

// AsString returns Value with a single trailing NUL (if present)
// trimmed, for NUL-terminated string properties like `device_type`.
func (p Prop) AsString() string {
	v := p.Value
	if n := len(v); n > 0 && v[n-1] == 0 {
		v = v[:n-1]
	}

	return string(v)
}

// Node is a single device tree node reachable from the struct stream.
// It is a cheap, re-walkable cursor, not a cached tree: obtaining
// Props()/Children() re-scans from Node's struct offset every time.
type Node struct {
	tree   *Tree
	name   []byte
	depth  int
	offset uint32 // offset of the first token after the node's name
}

// Name is the node's name as it appears in the struct stream (without
// the unit-address suffix stripping the original firmware may apply).
func (n Node) Name() []byte { return n.name }

// Depth is the node's distance from the tree root (root is depth 1).
func (n Node) Depth() int { return n.depth }

// Props returns a lazy sequence of this node's own properties, in
// struct-stream order, stopping at the first BEGIN_NODE, END_NODE or
// END token.
func (n Node) Props() PropIterator {
	return PropIterator{tree: n.tree, offset: n.offset}
}

// PropByName returns the first property named name, if any.
func (n Node) PropByName(name string) (Prop, bool) {
	it := n.Props()
	for {
		p, ok := it.Next()
		if !ok {
			return Prop{}, false
		}

		if string(p.Name) == name {
			return p, true
		}
	}
}

// Children returns a lazy sequence of this node's immediate children.
func (n Node) Children() NodeIterator {
	return n.tree.nodesFrom(n.offset, n.depth)
}

// ChildByName returns the first immediate child named name.
func (n Node) ChildByName(name string) (Node, bool) {
	it := n.Children()
	for {
		c, ok := it.Next()
		if !ok {
			return Node{}, false
		}

		if string(c.name) == name {
			return c, true
		}
	}
}

// ChildrenByProp returns the immediate children for which a property
// named name exists and satisfies pred.
func (n Node) ChildrenByProp(name string, pred func(Prop) bool) []Node {
	var out []Node

	it := n.Children()
	for {
		c, ok := it.Next()
		if !ok {
			break
		}

		if p, ok := c.PropByName(name); ok && pred(p) {
			out = append(out, c)
		}
	}

	return out
}

// ChildByPath walks path (slash-separated, a leading empty segment is
// ignored) through successive ChildByName calls. When a segment is
// missing, ChildByPath returns the deepest node reached instead of
// failing outright — this is the FDT's one permissive lookup, used by
// callers like /chosen/stdout-path that tolerate a partially-specified
// tree during early bring-up.
func (n Node) ChildByPath(path string) Node {
	cur := n
	start := 0

	if len(path) > 0 && path[0] == '/' {
		start = 1
	}

	for start <= len(path) {
		end := start

		for end < len(path) && path[end] != '/' {
			end++
		}

		if end == start {
			break
		}

		next, ok := cur.ChildByName(path[start:end])
		if !ok {
			return cur
		}

		cur = next
		start = end + 1
	}

	return cur
}

// AddressCells and SizeCells read this node's own #address-cells and
// #size-cells properties, defaulting to 2 and 1 respectively per the
// device tree specification's root defaults.
func (n Node) AddressCells() uint32 {
	if p, ok := n.PropByName("#address-cells"); ok {
		return p.AsU32s()[0]
	}

	return 2
}

func (n Node) SizeCells() uint32 {
	if p, ok := n.PropByName("#size-cells"); ok {
		return p.AsU32s()[0]
	}

	return 1
}

// PropIterator yields a node's own properties.
type PropIterator struct {
	tree   *Tree
	offset uint32
}

func (it *PropIterator) Next() (Prop, bool) {
	t := it.tree

	for {
		tok := t.u32(it.offset)
		switch tok {
		case tokenNOP:
			it.offset += 4
		case tokenBeginNode, tokenEndNode, tokenEnd:
			return Prop{}, false
		case tokenProp:
			length := t.u32(it.offset + 4)
			nameoff := t.u32(it.offset + 8)
			valBase := it.offset + 12

			name, _ := t.cstring(t.hdr.StringsOffset + nameoff)
			value := t.blob[valBase : valBase+length]

			it.offset = align4(valBase + length)

			return Prop{Name: name, Value: value}, true
		default:
			panic(fmt.Sprintf("fdt: unknown token %#x at offset %d", tok, it.offset))
		}
	}
}

// NodeIterator yields a sequence of sibling nodes at a fixed depth,
// skipping over any nested descendants of each sibling.
type NodeIterator struct {
	tree        *Tree
	offset      uint32
	parentDepth int
	searchDepth int
}

func (t *Tree) nodesFrom(offset uint32, parentDepth int) NodeIterator {
	return NodeIterator{tree: t, offset: offset, parentDepth: parentDepth}
}

// Next returns the next sibling at this iterator's target depth, or
// false when an END_NODE closing the parent (or the blob's END token)
// is reached.
func (it *NodeIterator) Next() (Node, bool) {
	t := it.tree

	for {
		tok := t.u32(it.offset)
		if tok == tokenEnd {
			return Node{}, false
		}

		it.offset += 4

		switch tok {
		case tokenBeginNode:
			name, next := t.cstring(it.offset)
			it.offset = align4(next)
			it.searchDepth++

			if it.searchDepth == 1 {
				return Node{
					tree:   t,
					name:   name,
					depth:  it.parentDepth + 1,
					offset: it.offset,
				}, true
			}
		case tokenEndNode:
			if it.searchDepth == 0 {
				return Node{}, false
			}

			it.searchDepth--
		case tokenProp:
			length := t.u32(it.offset)
			valBase := it.offset + 8
			it.offset = align4(valBase + length)
		case tokenNOP:
			// nothing to advance beyond the token itself
		default:
			panic(fmt.Sprintf("fdt: unknown token %#x at offset %d", tok, it.offset-4))
		}
	}
}
