package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// File layout (little endian):
//
//	magic "KGMI" | version u32 | dimensions u32 | vector count u32
//	vector count x (length u32 | length x f32)
//	id count u32 | id count x (length u32 | bytes)
//	crc32 (IEEE) of everything above
const (
	formatVersion uint32 = 1
	maxIDLength          = 1 << 20
	maxPrealloc          = 1 << 16
)

var magic = [4]byte{'K', 'G', 'M', 'I'}

// Header is the metadata at the start of a persisted index.
type Header struct {
	Version     uint32
	Dimensions  int
	VectorCount int
}

// Save writes the index to path atomically: the data goes to a temporary file in
// the same directory which is synced and renamed over path, so concurrent readers
// see either the previous file or the complete new one. Parent directories are created.
func (f *FlatIndex) Save(path string) error {
	if path == "" {
		return errors.New("index path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	t, err := renameio.TempFile("", path)
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	defer t.Cleanup()
	if err := f.Encode(t); err != nil {
		return err
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

// Load reads an index previously written by Save. A missing file yields ErrNotFound;
// any inconsistency in the stored data yields ErrCorrupt.
func Load(path string) (*FlatIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()
	idx, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return idx, nil
}

// ReadHeader reads only the header of the index at path.
func ReadHeader(path string) (*Header, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()
	d := &decoder{r: bufio.NewReader(file), crc: crc32.NewIEEE()}
	return d.header()
}

// Encode writes the index in the persisted format to w.
func (f *FlatIndex) Encode(w io.Writer) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	bw := bufio.NewWriter(w)
	crc := crc32.NewIEEE()
	out := io.MultiWriter(bw, crc)

	if _, err := out.Write(magic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	header := []uint32{formatVersion, uint32(f.dimensions), uint32(len(f.vectors))}
	if err := binary.Write(out, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, vec := range f.vectors {
		if err := binary.Write(out, binary.LittleEndian, uint32(len(vec))); err != nil {
			return fmt.Errorf("write vector length: %w", err)
		}
		if _, err := out.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	if err := binary.Write(out, binary.LittleEndian, uint32(len(f.ids))); err != nil {
		return fmt.Errorf("write id count: %w", err)
	}
	for _, id := range f.ids {
		if err := binary.Write(out, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("write id length: %w", err)
		}
		if _, err := io.WriteString(out, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, crc.Sum32()); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}
	return bw.Flush()
}

// Decode reads an index in the persisted format from r. Stored vectors are
// already normalized and are not normalized again.
func Decode(r io.Reader) (*FlatIndex, error) {
	d := &decoder{r: bufio.NewReader(r), crc: crc32.NewIEEE()}
	h, err := d.header()
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, 0, min(h.VectorCount, maxPrealloc))
	buf := make([]byte, h.Dimensions*4)
	for i := 0; i < h.VectorCount; i++ {
		n, err := d.u32("vector length")
		if err != nil {
			return nil, err
		}
		if int(n) != h.Dimensions {
			return nil, fmt.Errorf("%w: vector %d has %d components, expected %d", ErrCorrupt, i, n, h.Dimensions)
		}
		if err := d.full(buf, "vector"); err != nil {
			return nil, err
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	idCount, err := d.u32("id count")
	if err != nil {
		return nil, err
	}
	if int(idCount) != h.VectorCount {
		return nil, fmt.Errorf("%w: %d vectors but %d ids", ErrCorrupt, h.VectorCount, idCount)
	}
	ids := make([]string, 0, min(int(idCount), maxPrealloc))
	for i := 0; i < int(idCount); i++ {
		n, err := d.u32("id length")
		if err != nil {
			return nil, err
		}
		if n > maxIDLength {
			return nil, fmt.Errorf("%w: id %d length %d exceeds limit", ErrCorrupt, i, n)
		}
		idBytes := make([]byte, n)
		if err := d.full(idBytes, "id"); err != nil {
			return nil, err
		}
		ids = append(ids, string(idBytes))
	}

	want := d.crc.Sum32()
	var got uint32
	if err := binary.Read(d.r, binary.LittleEndian, &got); err != nil {
		return nil, fmt.Errorf("%w: read checksum: %v", ErrCorrupt, err)
	}
	if got != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if _, err := d.r.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after checksum", ErrCorrupt)
	}

	return &FlatIndex{dimensions: h.Dimensions, ids: ids, vectors: vectors}, nil
}

// decoder reads fields while feeding every byte to the running checksum.
type decoder struct {
	r   *bufio.Reader
	crc hash.Hash32
}

func (d *decoder) full(buf []byte, what string) error {
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrCorrupt, what, err)
	}
	_, _ = d.crc.Write(buf)
	return nil
}

func (d *decoder) u32(what string) (uint32, error) {
	var b [4]byte
	if err := d.full(b[:], what); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (d *decoder) header() (*Header, error) {
	var m [4]byte
	if err := d.full(m[:], "magic"); err != nil {
		return nil, err
	}
	if m != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, m[:])
	}
	version, err := d.u32("version")
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, version)
	}
	dim, err := d.u32("dimensions")
	if err != nil {
		return nil, err
	}
	count, err := d.u32("vector count")
	if err != nil {
		return nil, err
	}
	if dim > MaxDimensions {
		return nil, fmt.Errorf("%w: dimension %d exceeds limit", ErrCorrupt, dim)
	}
	if dim == 0 && count > 0 {
		return nil, fmt.Errorf("%w: %d vectors with zero dimension", ErrCorrupt, count)
	}
	return &Header{Version: version, Dimensions: int(dim), VectorCount: int(count)}, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
