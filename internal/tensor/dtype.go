// Package tensor provides the N-dimensional array types shared by the pipeline engine.
package tensor

import "fmt"

// DataType represents the on-disk element type of a dataset.
//
// In memory, frame data is always float32; DataType only governs how a
// backing store encodes elements.
type DataType int

// Supported data types.
const (
	Float32 DataType = iota
	Float64
	Int32
	Uint16
	Uint8
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float64:
		return 8
	case Float32, Int32:
		return 4
	case Uint16:
		return 2
	case Uint8:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Uint16:
		return "uint16"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// ParseDataType is the inverse of DataType.String.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	case "int32":
		return Int32, nil
	case "uint16":
		return Uint16, nil
	case "uint8":
		return Uint8, nil
	default:
		return 0, fmt.Errorf("unsupported data type %q", s)
	}
}
