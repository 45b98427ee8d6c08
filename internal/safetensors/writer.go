package safetensors

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/d4l3k/go-bfloat16"
	"github.com/goccy/go-json"
	"github.com/x448/float16"
)

// Tensor is one named tensor to be written. Float dtypes (F32, F16, BF16)
// take their values from Data; I64 takes them from Ints.
type Tensor struct {
	Name  string
	DType string
	Shape []int
	Data  []float32
	Ints  []int64
}

// WriteFile writes tensors to path in safetensors layout.
func WriteFile(path string, tensors []Tensor, metadata map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, tensors, metadata); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Write encodes tensors in the order given. The JSON header is space-padded
// to an 8 byte boundary so tensor data stays aligned.
func Write(w io.Writer, tensors []Tensor, metadata map[string]string) error {
	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	payloads := make([][]byte, len(tensors))
	var offset int64
	for i, t := range tensors {
		if t.Name == "" || t.Name == metadataKey {
			return fmt.Errorf("invalid tensor name %q", t.Name)
		}
		if _, dup := header[t.Name]; dup {
			return fmt.Errorf("duplicate tensor %s", t.Name)
		}
		payload, err := encodeTensor(t)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", t.Name, err)
		}
		payloads[i] = payload
		header[t.Name] = tensorHeader{
			DType:       t.DType,
			Shape:       t.Shape,
			DataOffsets: []int64{offset, offset + int64(len(payload))},
		}
		offset += int64(len(payload))
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return err
	}
	if pad := len(headerBytes) % 8; pad != 0 {
		headerBytes = append(headerBytes, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(headerBytes); err != nil {
		return err
	}
	for _, p := range payloads {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func encodeTensor(t Tensor) ([]byte, error) {
	n, err := shapeElements(t.Shape)
	if err != nil {
		return nil, err
	}
	switch t.DType {
	case "F32":
		if len(t.Data) != n {
			return nil, fmt.Errorf("shape %v wants %d values, got %d", t.Shape, n, len(t.Data))
		}
		out := make([]byte, n*4)
		for i, v := range t.Data {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
		return out, nil
	case "F16":
		if len(t.Data) != n {
			return nil, fmt.Errorf("shape %v wants %d values, got %d", t.Shape, n, len(t.Data))
		}
		out := make([]byte, n*2)
		for i, v := range t.Data {
			binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
		}
		return out, nil
	case "BF16":
		if len(t.Data) != n {
			return nil, fmt.Errorf("shape %v wants %d values, got %d", t.Shape, n, len(t.Data))
		}
		return bfloat16.EncodeFloat32(t.Data), nil
	case "I64":
		if len(t.Ints) != n {
			return nil, fmt.Errorf("shape %v wants %d values, got %d", t.Shape, n, len(t.Ints))
		}
		out := make([]byte, n*8)
		for i, v := range t.Ints {
			binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %s", t.DType)
	}
}

// shapeElements is numElements but admits zero-sized dimensions, which occur
// when a batch emits no units.
func shapeElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if d == 0 {
			return 0, nil
		}
		if n > (int(^uint(0)>>1))/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}
