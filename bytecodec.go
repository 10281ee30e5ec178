package apns

import "encoding/binary"

// ByteCodec packs and unpacks the big-endian unsigned integers that make
// up every length prefix and identifier on the wire. APNs's binary
// formats are defined entirely in network byte order, so this is the
// one place that byte order is spelled out; everything else calls
// through it.

func packU8(n uint8) []byte {
	return []byte{n}
}

func unpackU8(b []byte) uint8 {
	return b[0]
}

func packU16BE(n uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, n)
	return b
}

func unpackU16BE(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

func packU32BE(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

func unpackU32BE(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}
