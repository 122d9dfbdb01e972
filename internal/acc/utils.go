package acc

import "unsafe"

// Float64sToBytes returns a copy of values as raw bytes in host byte order,
// ready for MemcpyH2D.
func Float64sToBytes(values []float64) []byte {
	out := make([]byte, len(values)*8)
	if len(values) > 0 {
		copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), len(out)))
	}
	return out
}

// BytesToFloat64s decodes raw bytes produced by MemcpyD2H. Trailing bytes
// that do not form a full value are ignored.
func BytesToFloat64s(raw []byte) []float64 {
	out := make([]float64, len(raw)/8)
	if len(out) > 0 {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(&out[0])), len(out)*8), raw)
	}
	return out
}

// Int32sToBytes returns a copy of values as raw bytes in host byte order.
// Parameter and transpose stacks are uploaded this way.
func Int32sToBytes(values []int32) []byte {
	out := make([]byte, len(values)*4)
	if len(values) > 0 {
		copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), len(out)))
	}
	return out
}

// alignedBytes allocates n bytes backed by 8-byte words so the memory can be
// reinterpreted as float64 or int32 without unaligned access.
func alignedBytes(n int) []byte {
	if n == 0 {
		return []byte{}
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}

func float64View(raw []byte) []float64 {
	if len(raw) < 8 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&raw[0])), len(raw)/8)
}

func int32View(raw []byte) []int32 {
	if len(raw) < 4 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&raw[0])), len(raw)/4)
}

// inRange reports whether [first, first+length) lies within [0, size).
func inRange(first, length, size int) bool {
	return first >= 0 && length <= size && first <= size-length
}
