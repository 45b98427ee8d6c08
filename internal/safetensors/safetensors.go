package safetensors

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/goccy/go-json"
	"github.com/x448/float16"
	"golang.org/x/sys/unix"
)

const metadataKey = "__metadata__"

type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// File is an opened safetensors container. When the platform supports it the
// whole file is mapped read-only and tensor reads are served from the mapping;
// otherwise reads fall back to ReadAt on the path. Close releases the mapping.
type File struct {
	Path      string
	DataStart int64
	Tensors   map[string]TensorInfo
	Metadata  map[string]string

	size    int64
	data    []byte
	mmapped bool
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	headerLen, err := readU64(f)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if headerLen > uint64(stat.Size())-8 {
		return nil, fmt.Errorf("header length %d exceeds file size %d", headerLen, stat.Size())
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, err
	}
	tensors, metadata, err := parseHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	sf := &File{
		Path:      path,
		DataStart: int64(8 + headerLen),
		Tensors:   tensors,
		Metadata:  metadata,
		size:      stat.Size(),
	}

	// Prefer mmap where available; feature dumps can be large.
	if size := stat.Size(); size > 0 && size <= int64(int(^uint(0)>>1)) {
		data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
		if err == nil {
			sf.data = data
			sf.mmapped = true
		}
	}
	return sf, nil
}

func parseHeader(headerBytes []byte) (map[string]TensorInfo, map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, nil, err
	}
	var metadata map[string]string
	if msg, ok := raw[metadataKey]; ok {
		// Non-string metadata values are tolerated and dropped.
		_ = json.Unmarshal(msg, &metadata)
		delete(raw, metadataKey)
	}

	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 {
			return nil, nil, fmt.Errorf("tensor %s: invalid data_offsets", name)
		}
		tensors[name] = TensorInfo{
			DType: th.DType,
			Shape: th.Shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		}
	}
	return tensors, metadata, nil
}

// Close releases the file mapping, if any. It is safe to call more than once.
func (f *File) Close() error {
	if !f.mmapped {
		return nil
	}
	f.mmapped = false
	data := f.data
	f.data = nil
	return unix.Munmap(data)
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor not found: %s", name)
	}
	if t.End < t.Start || t.Start < 0 {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: invalid offsets", name)
	}
	// Offsets come from an untrusted header; bound them by the file before
	// allocating.
	if t.End > f.size-f.DataStart {
		return nil, TensorInfo{}, fmt.Errorf("read tensor %s: %w", name, io.ErrUnexpectedEOF)
	}
	n := t.End - t.Start
	off := f.DataStart + t.Start
	buf := make([]byte, n)

	if f.mmapped {
		if off+n > int64(len(f.data)) {
			return nil, TensorInfo{}, fmt.Errorf("read tensor %s: %w", name, io.ErrUnexpectedEOF)
		}
		copy(buf, f.data[off:off+n])
		return buf, t, nil
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	defer func() { _ = file.Close() }()

	if _, err := file.ReadAt(buf, off); err != nil {
		return nil, TensorInfo{}, fmt.Errorf("read tensor %s: %w", name, err)
	}
	return buf, t, nil
}

func (f *File) ReadTensorF32(name string) ([]float32, TensorInfo, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	n, err := numElements(info.Shape)
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	switch info.DType {
	case "F32":
		if len(raw) != n*4 {
			return nil, TensorInfo{}, fmt.Errorf("tensor %s: invalid f32 data size", name)
		}
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, info, nil
	case "BF16":
		if len(raw) != n*2 {
			return nil, TensorInfo{}, fmt.Errorf("tensor %s: invalid bf16 data size", name)
		}
		return bfloat16.DecodeFloat32(raw), info, nil
	case "F16":
		if len(raw) != n*2 {
			return nil, TensorInfo{}, fmt.Errorf("tensor %s: invalid f16 data size", name)
		}
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return out, info, nil
	default:
		return nil, TensorInfo{}, fmt.Errorf("unsupported dtype %s", info.DType)
	}
}

// ReadTensorInt reads an integer tensor (I64, I32) as ints. Float tensors are
// accepted and truncated, since exporters often store lengths as F32.
func (f *File) ReadTensorInt(name string) ([]int, TensorInfo, error) {
	info, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor not found: %s", name)
	}
	switch info.DType {
	case "I64", "I32":
	default:
		vals, info, err := f.ReadTensorF32(name)
		if err != nil {
			return nil, TensorInfo{}, err
		}
		out := make([]int, len(vals))
		for i, v := range vals {
			out[i] = int(v)
		}
		return out, info, nil
	}

	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	n, err := numElements(info.Shape)
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	out := make([]int, n)
	if info.DType == "I64" {
		if len(raw) != n*8 {
			return nil, TensorInfo{}, fmt.Errorf("tensor %s: invalid i64 data size", name)
		}
		for i := range out {
			out[i] = int(int64(binary.LittleEndian.Uint64(raw[i*8:])))
		}
		return out, info, nil
	}
	if len(raw) != n*4 {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: invalid i32 data size", name)
	}
	for i := range out {
		out[i] = int(int32(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	return out, info, nil
}

func numElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("empty shape")
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if n > (int(^uint(0)>>1))/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
