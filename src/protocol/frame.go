package protocol

import "fmt"

// FrameSize 指令通道上每个数据包固定 16 字节，最后 1 字节为校验和
const FrameSize = 16

// Checksum 指令通道的累加校验：前 15 字节之和取低 8 位
func Checksum(b []byte) byte {
	var sum int
	for i, v := range b {
		if i >= FrameSize-1 {
			break
		}
		sum += int(v)
	}
	return byte(sum & 0xFF)
}

// Frame 将 [cmd, ...payload] 补零到 16 字节并写入校验和
// 大数据通道的数据包不需要也不应该经过 Frame
func Frame(packet []byte) ([]byte, error) {
	if len(packet) == 0 {
		return nil, fmt.Errorf("empty packet")
	}
	if len(packet) > FrameSize-1 {
		return nil, fmt.Errorf("packet too long: %d bytes (max %d)", len(packet), FrameSize-1)
	}
	out := make([]byte, FrameSize)
	copy(out, packet)
	out[FrameSize-1] = Checksum(out)
	return out, nil
}

// ValidFrame 报告 b 是否为校验和正确的 16 字节指令帧
func ValidFrame(b []byte) bool {
	return len(b) == FrameSize && b[FrameSize-1] == Checksum(b)
}
