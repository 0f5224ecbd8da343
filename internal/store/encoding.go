package store

import (
	"encoding/binary"
	"math"

	"github.com/born-ml/tomo/internal/tensor"
)

// Quantize rounds and clamps v to what dtype can represent.
func Quantize(dtype tensor.DataType, v float32) float32 {
	switch dtype {
	case tensor.Float32:
		return v
	case tensor.Float64:
		return v
	case tensor.Int32:
		return float32(clampRound(float64(v), math.MinInt32, math.MaxInt32))
	case tensor.Uint16:
		return float32(clampRound(float64(v), 0, math.MaxUint16))
	case tensor.Uint8:
		return float32(clampRound(float64(v), 0, math.MaxUint8))
	default:
		panic("unknown data type")
	}
}

func clampRound(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, math.Round(v)))
}

// EncodeElements writes values into dst as little-endian dtype elements.
// dst must hold len(values)*dtype.Size() bytes.
func EncodeElements(dtype tensor.DataType, dst []byte, values []float32) {
	size := dtype.Size()
	for i, v := range values {
		b := dst[i*size : (i+1)*size]
		switch dtype {
		case tensor.Float32:
			binary.LittleEndian.PutUint32(b, math.Float32bits(v))
		case tensor.Float64:
			binary.LittleEndian.PutUint64(b, math.Float64bits(float64(v)))
		case tensor.Int32:
			binary.LittleEndian.PutUint32(b, uint32(int32(clampRound(float64(v), math.MinInt32, math.MaxInt32))))
		case tensor.Uint16:
			binary.LittleEndian.PutUint16(b, uint16(Quantize(dtype, v)))
		case tensor.Uint8:
			b[0] = uint8(Quantize(dtype, v))
		}
	}
}

// DecodeElements reads len(dst) little-endian dtype elements from src.
func DecodeElements(dtype tensor.DataType, dst []float32, src []byte) {
	size := dtype.Size()
	for i := range dst {
		b := src[i*size : (i+1)*size]
		switch dtype {
		case tensor.Float32:
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		case tensor.Float64:
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		case tensor.Int32:
			dst[i] = float32(int32(binary.LittleEndian.Uint32(b)))
		case tensor.Uint16:
			dst[i] = float32(binary.LittleEndian.Uint16(b))
		case tensor.Uint8:
			dst[i] = float32(b[0])
		}
	}
}

// Runs calls fn once per contiguous run of r inside a row-major array of
// shape. offset is the element offset of the run in the array, pos the
// element offset of the run inside a packed array of r.Shape(), and n the
// run length.
func Runs(shape tensor.Shape, r tensor.Region, fn func(offset, pos, n int) error) error {
	rank := len(shape)
	if rank == 0 {
		return fn(0, 0, 1)
	}
	strides := shape.ComputeStrides()
	last := r[rank-1]
	outer := r.Shape()[:rank-1]

	pos := 0
	var err error
	tensor.ForEachIndex(outer, func(idx []int) {
		if err != nil {
			return
		}
		offset := last.Start
		for d, v := range idx {
			offset += (r[d].Start + v) * strides[d]
		}
		err = fn(offset, pos, last.Len())
		pos += last.Len()
	})
	return err
}

// runLength is the length of the longest run Runs can produce for r.
func runLength(r tensor.Region) int {
	if len(r) == 0 {
		return 1
	}
	return r[len(r)-1].Len()
}
