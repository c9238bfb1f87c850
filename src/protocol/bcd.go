package protocol

import "encoding/binary"

// ToBCD 将 0..99 的十进制值按 BCD 编码：十进制数字串按十六进制解析
// 例如 16 -> 0x16
func ToBCD(v int) byte {
	if v < 0 {
		v = 0
	}
	v %= 100
	return byte((v/10)<<4 | v%10)
}

// FromBCD ToBCD 的逆运算，非法半字节返回 -1
func FromBCD(b byte) int {
	hi, lo := int(b>>4), int(b&0x0F)
	if hi > 9 || lo > 9 {
		return -1
	}
	return hi*10 + lo
}

func le16(b []byte) int {
	return int(binary.LittleEndian.Uint16(b))
}

func le24(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16
}

func be24(b []byte) int {
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
}

func putLE24(b []byte, v int) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
