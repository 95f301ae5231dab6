package fdt_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/avirt/allora-kernel/fdt"
)

// blobBuilder assembles a minimal synthetic FDT blob for tests: a real
// firmware blob has a strings table and a struct stream; we build both
// by hand here instead of depending on a fixture file, since (per
// spec.md §4.1) the only thing that matters is token shape.
type blobBuilder struct {
	strct   bytes.Buffer
	strings bytes.Buffer
}

func (b *blobBuilder) u32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.strct.Write(tmp[:])
}

func (b *blobBuilder) beginNode(name string) {
	b.u32(0x1)
	b.strct.WriteString(name)
	b.strct.WriteByte(0)

	for b.strct.Len()%4 != 0 {
		b.strct.WriteByte(0)
	}
}

func (b *blobBuilder) endNode() { b.u32(0x2) }

func (b *blobBuilder) prop(name string, value []byte) {
	nameoff := uint32(b.strings.Len())
	b.strings.WriteString(name)
	b.strings.WriteByte(0)

	b.u32(0x3)
	b.u32(uint32(len(value)))
	b.u32(nameoff)
	b.strct.Write(value)

	for b.strct.Len()%4 != 0 {
		b.strct.WriteByte(0)
	}
}

func (b *blobBuilder) build() []byte {
	b.u32(0x9)

	const headerSize = 40

	structOff := uint32(headerSize)
	stringsOff := structOff + uint32(b.strct.Len())

	var out bytes.Buffer

	hdr := []uint32{
		0xd00dfeed,
		stringsOff + uint32(b.strings.Len()),
		structOff,
		stringsOff,
		0,
		17,
		16,
		0,
		uint32(b.strings.Len()),
		uint32(b.strct.Len()),
	}

	for _, v := range hdr {
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], v)
		out.Write(tmp[:])
	}

	out.Write(b.strct.Bytes())
	out.Write(b.strings.Bytes())

	return out.Bytes()
}

func buildSample(t *testing.T) []byte {
	t.Helper()

	var b blobBuilder

	b.beginNode("")
	b.prop("#address-cells", []byte{0, 0, 0, 2})
	b.prop("#size-cells", []byte{0, 0, 0, 1})

	b.beginNode("memory@40000000")
	b.prop("device_type", []byte("memory\x00"))
	b.prop("reg", []byte{0, 0, 0, 0, 0x40, 0, 0, 0, 0, 0, 0, 0, 0x80, 0, 0, 0})
	b.endNode()

	b.beginNode("a")
	b.beginNode("b")
	b.beginNode("c")
	b.prop("leaf", []byte("yes\x00"))
	b.endNode()
	b.endNode()
	b.endNode()

	b.endNode() // root

	return b.build()
}

func TestRootAndChildrenOrder(t *testing.T) {
	t.Parallel()

	tree, err := fdt.New(buildSample(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	root, ok := tree.Root()
	if !ok {
		t.Fatal("no root node")
	}

	var names []string

	it := root.Children()
	for {
		n, ok := it.Next()
		if !ok {
			break
		}

		names = append(names, string(n.Name()))
	}

	want := []string{"memory@40000000", "a"}
	if len(names) != len(want) {
		t.Fatalf("children = %v, want %v", names, want)
	}

	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("children[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestChildByPathMatchesManualWalk(t *testing.T) {
	t.Parallel()

	tree, err := fdt.New(buildSample(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	root, _ := tree.Root()

	viaPath := root.ChildByPath("/a/b/c")

	a, ok := root.ChildByName("a")
	if !ok {
		t.Fatal("missing child a")
	}

	bNode, ok := a.ChildByName("b")
	if !ok {
		t.Fatal("missing child b")
	}

	c, ok := bNode.ChildByName("c")
	if !ok {
		t.Fatal("missing child c")
	}

	if string(viaPath.Name()) != string(c.Name()) || viaPath.Depth() != c.Depth() {
		t.Fatalf("ChildByPath = %+v, want %+v", viaPath, c)
	}

	leaf, ok := viaPath.PropByName("leaf")
	if !ok || string(leaf.Value) != "yes\x00" {
		t.Fatalf("leaf prop = %+v", leaf)
	}
}

func TestChildByPathPermissiveOnMissingSegment(t *testing.T) {
	t.Parallel()

	tree, err := fdt.New(buildSample(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	root, _ := tree.Root()

	got := root.ChildByPath("/a/b/does-not-exist/also-missing")

	b, ok := root.ChildByName("a")
	if !ok {
		t.Fatal("missing a")
	}

	b, ok = b.ChildByName("b")
	if !ok {
		t.Fatal("missing b")
	}

	if string(got.Name()) != string(b.Name()) {
		t.Fatalf("permissive ChildByPath = %q, want deepest match %q", got.Name(), b.Name())
	}
}

func TestMemoryNodeRegAndAddressCells(t *testing.T) {
	t.Parallel()

	tree, err := fdt.New(buildSample(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	root, _ := tree.Root()

	if root.AddressCells() != 2 || root.SizeCells() != 1 {
		t.Fatalf("address/size cells = %d/%d, want 2/1", root.AddressCells(), root.SizeCells())
	}

	mem := root.ChildrenByProp("device_type", func(p fdt.Prop) bool {
		return p.AsString() == "memory"
	})
	if len(mem) != 1 {
		t.Fatalf("ChildrenByProp(device_type=memory) = %d nodes, want 1", len(mem))
	}

	reg, ok := mem[0].PropByName("reg")
	if !ok {
		t.Fatal("missing reg prop")
	}

	cells := reg.AsU32s()
	if len(cells) != 4 {
		t.Fatalf("reg cells = %d, want 4", len(cells))
	}

	addr := uint64(cells[0])<<32 | uint64(cells[1])
	size := uint64(cells[2])<<32 | uint64(cells[3])

	if addr != 0x40000000 || size != 0x80000000 {
		t.Fatalf("reg = %#x/%#x, want 0x40000000/0x80000000", addr, size)
	}
}

func TestUnknownTokenPanics(t *testing.T) {
	t.Parallel()

	var b blobBuilder
	b.beginNode("")
	b.strct.Write([]byte{0xff, 0xff, 0xff, 0xff})
	b.endNode()

	blob := b.build()

	tree, err := fdt.New(blob)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unknown token")
		}
	}()

	root, _ := tree.Root()
	it := root.Children()
	it.Next()
}
