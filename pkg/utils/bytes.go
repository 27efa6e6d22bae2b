package utils

import "encoding/binary"

// All multi-byte values on the control channel are big endian.

func Uint32ToBytes(value uint32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, value)
	return out
}

func Uint64ToBytes(value uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, value)
	return out
}

func BytesToUint32(input []byte) uint32 {
	return binary.BigEndian.Uint32(input)
}
