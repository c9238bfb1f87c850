package relay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/sigurn/crc16"
)

// 中继帧解析错误
var (
	ErrBadMagic       = errors.New("relay: 无效魔数")
	ErrHeaderCRC      = errors.New("relay: 头部 CRC16 校验失败")
	ErrPayloadCRC     = errors.New("relay: 载荷 CRC32 校验失败")
	ErrPayloadTooBig  = errors.New("relay: 载荷过大")
	ErrVersionUnknown = errors.New("relay: 不支持的协议版本")
)

const (
	flagUplink = 0x01
	flagHello  = 0x02
	// headerCRCOffset 头部 CRC16 覆盖 [0, 18)
	headerCRCOffset = 18
)

// Codec 实现 inter.RelayCodec
//
// 头部 20 字节 (小端):
//
//	0  magic    u16  0x4752
//	2  version  u8
//	3  flags    u8   bit0 = uplink, bit1 = hello
//	4  channel  u8
//	5  reserved u8
//	6  length   u32
//	10 unix ms  u64
//	18 crc16    u16  MODBUS, 覆盖 0..17
//
// 随后是载荷，最后 4 字节为头部+载荷的 CRC32 (IEEE)
type Codec struct{}

// NewCodec 创建一个新的编解码器实例
func NewCodec() inter.RelayCodec {
	return &Codec{}
}

var modbusTable = crc16.MakeTable(crc16.CRC16_MODBUS)

func crc16Modbus(data []byte) uint16 {
	return crc16.Checksum(data, modbusTable)
}

func (c *Codec) Pack(f inter.Frame) ([]byte, error) {
	payloadLen := len(f.Payload)
	if uint32(payloadLen) > inter.RelayMaxPayload {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooBig, payloadLen)
	}

	totalSize := int(inter.RelayHeaderSize) + payloadLen + int(inter.RelayFooterSize)
	buf := make([]byte, inter.RelayHeaderSize, totalSize)

	var flags uint8
	if f.Uplink {
		flags |= flagUplink
	}
	if f.Hello {
		flags |= flagHello
	}

	binary.LittleEndian.PutUint16(buf[0:], inter.RelayMagic)
	buf[2] = inter.RelayVersion
	buf[3] = flags
	buf[4] = byte(f.Channel)
	binary.LittleEndian.PutUint32(buf[6:], uint32(payloadLen))
	binary.LittleEndian.PutUint64(buf[10:], uint64(f.TimestampMs))
	binary.LittleEndian.PutUint16(buf[headerCRCOffset:], crc16Modbus(buf[:headerCRCOffset]))

	buf = append(buf, f.Payload...)

	sum := crc32.ChecksumIEEE(buf)
	buf = binary.LittleEndian.AppendUint32(buf, sum)
	return buf, nil
}

func (c *Codec) Unpack(r io.Reader) (*inter.Frame, error) {
	header := make([]byte, inter.RelayHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	magic := binary.LittleEndian.Uint16(header[0:])
	if magic != inter.RelayMagic {
		return nil, fmt.Errorf("%w: 0x%X", ErrBadMagic, magic)
	}

	expectedCRC := binary.LittleEndian.Uint16(header[headerCRCOffset:])
	actualCRC := crc16Modbus(header[:headerCRCOffset])
	if expectedCRC != actualCRC {
		return nil, fmt.Errorf("%w: 期望 0x%X, 实际 0x%X", ErrHeaderCRC, expectedCRC, actualCRC)
	}
	if header[2] != inter.RelayVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersionUnknown, header[2])
	}

	length := binary.LittleEndian.Uint32(header[6:])
	if length > inter.RelayMaxPayload {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooBig, length)
	}

	// Body = Payload + Footer，一次性读取
	body := make([]byte, length+inter.RelayFooterSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	payload := body[:length]

	chk := crc32.NewIEEE()
	chk.Write(header)
	chk.Write(payload)
	actualSum := chk.Sum32()
	expectedSum := binary.LittleEndian.Uint32(body[length:])
	if actualSum != expectedSum {
		return nil, fmt.Errorf("%w: 期望 0x%X, 实际 0x%X", ErrPayloadCRC, expectedSum, actualSum)
	}

	return &inter.Frame{
		Uplink:      header[3]&flagUplink != 0,
		Hello:       header[3]&flagHello != 0,
		Channel:     inter.Channel(header[4]),
		TimestampMs: int64(binary.LittleEndian.Uint64(header[10:])),
		Payload:     payload,
	}, nil
}

// WriteHello 中继侧接入后写出的首帧，声明这条连接对应的戒指
func WriteHello(w io.Writer, deviceID string, now time.Time) error {
	buf, err := NewCodec().Pack(inter.Frame{
		Uplink:      true,
		Hello:       true,
		TimestampMs: now.UnixMilli(),
		Payload:     []byte(deviceID),
	})
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
