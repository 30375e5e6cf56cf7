package memory

import (
	"bytes"
	"context"
	"testing"
)

type heap interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
	Size() uint32
	Grow(deltaPages uint32) (uint32, bool)
}

func backends(t *testing.T) map[string]heap {
	t.Helper()
	ctx := context.Background()

	inst, err := Instantiate(ctx, 1, 4)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	t.Cleanup(func() { _ = inst.Close(ctx) })

	return map[string]heap{
		"slice":  NewSlice(1, 4),
		"wazero": inst.Memory,
	}
}

func TestHeapModule_Encoding(t *testing.T) {
	want := []byte{
		0x00, 0x61, 0x73, 0x6d,
		0x01, 0x00, 0x00, 0x00,
		0x05, 0x04, 0x01, 0x01, 0x01, 0x02,
		0x07, 0x0a, 0x01,
		0x06, 'm', 'e', 'm', 'o', 'r', 'y',
		0x02, 0x00,
	}
	m, err := heapModule(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Encode(); !bytes.Equal(got, want) {
		t.Fatalf("heapModule(1, 2) = % x, want % x", got, want)
	}
}

func TestHeapModule_RejectsBadLimits(t *testing.T) {
	if _, err := heapModule(4, 2); err == nil {
		t.Fatal("expected error for initial pages above max")
	}
	if _, err := heapModule(1, 70000); err == nil {
		t.Fatal("expected error for more than 65536 pages")
	}
}

func TestBackends_ReadWrite(t *testing.T) {
	for name, mem := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if mem.Size() != pageSize {
				t.Fatalf("Size = %d, want %d", mem.Size(), pageSize)
			}

			if err := mem.Write(16, []byte{1, 2, 3, 4}); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			got, err := mem.Read(16, 4)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
				t.Errorf("Read = %v", got)
			}

			if err := mem.WriteU16(32, 0xBEEF); err != nil {
				t.Fatal(err)
			}
			if v, _ := mem.ReadU16(32); v != 0xBEEF {
				t.Errorf("ReadU16 = %x", v)
			}
			if err := mem.WriteU32(40, 0xDEADBEEF); err != nil {
				t.Fatal(err)
			}
			if v, _ := mem.ReadU32(40); v != 0xDEADBEEF {
				t.Errorf("ReadU32 = %x", v)
			}
			if err := mem.WriteU64(48, 0x0123456789ABCDEF); err != nil {
				t.Fatal(err)
			}
			if v, _ := mem.ReadU64(48); v != 0x0123456789ABCDEF {
				t.Errorf("ReadU64 = %x", v)
			}
		})
	}
}

func TestBackends_OutOfBounds(t *testing.T) {
	for name, mem := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := mem.ReadU32(pageSize - 2); err == nil {
				t.Error("expected error reading past end")
			}
			if err := mem.Write(pageSize-1, []byte{1, 2}); err == nil {
				t.Error("expected error writing past end")
			}
		})
	}
}

func TestBackends_Grow(t *testing.T) {
	for name, mem := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := mem.WriteU32(8, 77); err != nil {
				t.Fatal(err)
			}
			prev, ok := mem.Grow(2)
			if !ok || prev != 1 {
				t.Fatalf("Grow(2) = %d, %v", prev, ok)
			}
			if mem.Size() != 3*pageSize {
				t.Errorf("Size = %d after grow", mem.Size())
			}
			if v, _ := mem.ReadU32(8); v != 77 {
				t.Errorf("contents lost on grow: %d", v)
			}
			if err := mem.WriteU32(2*pageSize+8, 1); err != nil {
				t.Errorf("write into grown page failed: %v", err)
			}
			if _, ok := mem.Grow(5); ok {
				t.Error("Grow past max pages should fail")
			}
		})
	}
}
