package vectorindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"

	"echodoc/internal/domain"
)

// Snapshot layout, little endian:
//
//	magic "EDVI" | version u16 | dimension u32 | count u64
//	count × ( chunk_id str | dimension × f32 bits | meta_count u32 | meta_count × (key str | value str) )
//
// str is a u32 byte length followed by the bytes. Metadata keys are written
// in sorted order so equal indexes produce equal files.
var magic = [4]byte{'E', 'D', 'V', 'I'}

const (
	formatVersion = 1
	maxStringLen  = 64 << 20
)

// ErrCorruptSnapshot reports an unreadable snapshot.
var ErrCorruptSnapshot = errors.New("vectorindex: corrupt snapshot")

// Persist writes the current snapshot to w.
func (ix *Index) Persist(w io.Writer) error {
	snap := ix.current.Load()
	bw := bufio.NewWriter(w)
	enc := encoder{w: bw}

	enc.bytes(magic[:])
	enc.u16(formatVersion)
	enc.u32(uint32(ix.dimension))
	enc.u64(uint64(len(snap.entries)))
	for _, e := range snap.entries {
		enc.str(e.ChunkID)
		for _, x := range e.Vector {
			enc.u32(math.Float32bits(x))
		}
		keys := slices.Sorted(maps.Keys(e.Metadata))
		enc.u32(uint32(len(keys)))
		for _, k := range keys {
			enc.str(k)
			enc.str(e.Metadata[k])
		}
	}
	if enc.err != nil {
		return fmt.Errorf("vectorindex: persist: %w", enc.err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("vectorindex: persist: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Persist into a new index. It fails with
// domain.ErrDimensionMismatch when the snapshot dimension differs from
// dimension.
func Load(r io.Reader, dimension int, opts ...Option) (*Index, error) {
	ix, err := New(dimension, opts...)
	if err != nil {
		return nil, err
	}
	dec := decoder{r: bufio.NewReader(r)}

	var gotMagic [4]byte
	dec.read(gotMagic[:])
	version := dec.u16()
	dim := int(dec.u32())
	count := dec.u64()
	if dec.err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptSnapshot, dec.err)
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptSnapshot, gotMagic[:])
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, version)
	}
	if dim != dimension {
		return nil, fmt.Errorf("vectorindex: load: %w: snapshot has %d, configured %d",
			domain.ErrDimensionMismatch, dim, dimension)
	}

	records := make([]Record, 0, min(count, 1<<16))
	seen := make(map[string]struct{})
	for i := uint64(0); i < count; i++ {
		id := dec.str()
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(dec.u32())
		}
		n := dec.u32()
		var meta map[string]string
		if dec.err == nil {
			meta = make(map[string]string, min(n, 64))
		}
		for j := uint32(0); j < n && dec.err == nil; j++ {
			k := dec.str()
			meta[k] = dec.str()
		}
		if dec.err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrCorruptSnapshot, i, dec.err)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk id %q", ErrCorruptSnapshot, id)
		}
		seen[id] = struct{}{}
		records = append(records, Record{ChunkID: id, Vector: vec, Norm: l2(vec), Metadata: meta})
	}

	ix.mu.Lock()
	ix.commit(records)
	ix.mu.Unlock()
	return ix, nil
}

// SaveFile persists the index to path, replacing any existing file atomically.
// Concurrent calls are serialized; the snapshot is taken once the call holds
// the lock, so the last save to finish writes the newest revision.
func (ix *Index) SaveFile(path string) error {
	ix.saveMu.Lock()
	defer ix.saveMu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := ix.Persist(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile loads an index from path.
func LoadFile(path string, dimension int, opts ...Option) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, dimension, opts...)
}

type encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

func (e *encoder) bytes(b []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(b)
	}
}

func (e *encoder) u16(v uint16) {
	binary.LittleEndian.PutUint16(e.buf[:2], v)
	e.bytes(e.buf[:2])
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	e.bytes(e.buf[:4])
}

func (e *encoder) u64(v uint64) {
	binary.LittleEndian.PutUint64(e.buf[:8], v)
	e.bytes(e.buf[:8])
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	if e.err == nil {
		_, e.err = io.WriteString(e.w, s)
	}
}

type decoder struct {
	r   io.Reader
	buf [8]byte
	err error
}

func (d *decoder) read(b []byte) {
	if d.err == nil {
		_, d.err = io.ReadFull(d.r, b)
	}
}

func (d *decoder) u16() uint16 {
	d.read(d.buf[:2])
	return binary.LittleEndian.Uint16(d.buf[:2])
}

func (d *decoder) u32() uint32 {
	d.read(d.buf[:4])
	return binary.LittleEndian.Uint32(d.buf[:4])
}

func (d *decoder) u64() uint64 {
	d.read(d.buf[:8])
	return binary.LittleEndian.Uint64(d.buf[:8])
}

func (d *decoder) str() string {
	n := d.u32()
	if d.err != nil {
		return ""
	}
	if n > maxStringLen {
		d.err = fmt.Errorf("string length %d exceeds limit", n)
		return ""
	}
	b := make([]byte, n)
	d.read(b)
	return string(b)
}
