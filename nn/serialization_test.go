package nn

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	topologies := [][]int{{5, 12, 12, 2}, {40, 16, 9}, {8, 12, 2}}

	for i, sizes := range topologies {
		net := newTestNetwork(t, sizes, i%2 == 0, uint64(i+1))
		net.Mutate(0.5, 0.7, NewSource(uint64(i+100)))

		path := filepath.Join(dir, "net.bin")
		if err := net.SaveToFile(path); err != nil {
			t.Fatalf("%v: save: %v", sizes, err)
		}
		loaded, err := LoadFromFile(path)
		if err != nil {
			t.Fatalf("%v: load: %v", sizes, err)
		}
		if !loaded.Equal(net) {
			t.Errorf("%v: round trip is not bit-exact", sizes)
		}
	}
}

func TestEncodedHeaderLayout(t *testing.T) {
	net := newTestNetwork(t, []int{3, 2}, true, 1)
	data, err := net.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	if want := 4 + 2*4 + 4 + 4 + 4*(6+2); len(data) != want {
		t.Fatalf("Expected %d bytes, got %d", want, len(data))
	}
	if binary.LittleEndian.Uint32(data[0:]) != 2 ||
		binary.LittleEndian.Uint32(data[4:]) != 3 ||
		binary.LittleEndian.Uint32(data[8:]) != 2 {
		t.Error("Header does not start with numLayers and layer sizes")
	}
	if binary.LittleEndian.Uint32(data[16:]) != 1 {
		t.Error("Linear output flag not encoded as int32 1")
	}

	var back DenseNetwork
	if err := back.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(net) {
		t.Error("UnmarshalBinary does not match MarshalBinary")
	}
}

func TestLoadCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	net := newTestNetwork(t, []int{8, 12, 2}, true, 1)
	good, _ := net.MarshalBinary()

	absurd := append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(absurd, 1<<30)

	negative := append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(negative[8:], uint32(0xFFFFFFFF))

	badFlag := append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(badFlag[4+3*4+4:], 7)

	cases := map[string][]byte{
		"empty":      {},
		"truncated":  good[:len(good)-3],
		"trailing":   append(append([]byte(nil), good...), 0, 0, 0, 0),
		"header":     good[:10],
		"layers":     absurd,
		"negative":   negative,
		"linearFlag": badFlag,
	}

	for name, data := range cases {
		path := filepath.Join(dir, name+".bin")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := LoadFromFile(path)
		var ce *CorruptFileError
		if !errors.As(err, &ce) {
			t.Errorf("%s: expected *CorruptFileError, got %v", name, err)
			continue
		}
		if ce.Path != path {
			t.Errorf("%s: error path %q, want %q", name, ce.Path, path)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.bin"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected wrapped os.ErrNotExist, got %v", err)
	}
	var ce *CorruptFileError
	if errors.As(err, &ce) {
		t.Error("Missing file must not be reported as corrupt")
	}
}

func TestReadNetwork(t *testing.T) {
	net := newTestNetwork(t, []int{5, 12, 12, 2}, true, 1)
	var buf bytes.Buffer
	if _, err := net.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	back, err := ReadNetwork(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(net) {
		t.Error("ReadNetwork round trip mismatch")
	}
}
