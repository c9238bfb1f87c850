package inter

import "io"

// =============================================================================
// 戒指指令协议常量
// =============================================================================

// CmdID 指令 ID，即每个数据包的第 0 字节
type CmdID uint8

// 基础指令与偏好设置
const (
	CmdSetDateTime      CmdID = 0x01
	CmdBattery          CmdID = 0x03
	CmdPhoneName        CmdID = 0x04
	CmdDisplayPref      CmdID = 0x05
	CmdPowerOff         CmdID = 0x08
	CmdPreferences      CmdID = 0x0A
	CmdGoals            CmdID = 0x21
	CmdPacketSize       CmdID = 0x2F
	CmdFindDevice       CmdID = 0x50
	CmdManualHeartRate  CmdID = 0x69
	CmdNotification     CmdID = 0x73
	CmdBigDataV2        CmdID = 0xBC
	CmdFactoryReset     CmdID = 0xFF
	CmdRealtimeHRLegacy CmdID = 0x1E // 旧版实时心率，固件已不再使用
)

// 历史同步指令
const (
	CmdSyncHeartRate CmdID = 0x15
	CmdSyncStress    CmdID = 0x37
	CmdSyncHRV       CmdID = 0x39
	CmdSyncActivity  CmdID = 0x43
)

// 自动测量偏好
const (
	CmdAutoHeartRatePref   CmdID = 0x16
	CmdAutoSpO2Pref        CmdID = 0x2C
	CmdAutoStressPref      CmdID = 0x36
	CmdAutoHRVPref         CmdID = 0x38
	CmdAutoTemperaturePref CmdID = 0x3A
)

// 偏好设置的子操作字节
const (
	PrefRead  uint8 = 0x01
	PrefWrite uint8 = 0x02
)

// NotifyType 0x73 通知包的子类型（第 1 字节）
type NotifyType uint8

const (
	NotifyNewHeartRate NotifyType = 0x01
	NotifyNewSpO2      NotifyType = 0x03
	NotifyNewSteps     NotifyType = 0x04
	NotifyBattery      NotifyType = 0x0C
	NotifyLiveActivity NotifyType = 0x12
)

// DataType 大数据包的数据类型（第 1 字节）
type DataType uint8

const (
	DataTemperature DataType = 0x25
	DataSleep       DataType = 0x27
	DataSpO2        DataType = 0x2A
)

// BigDataHeaderSize 大数据包头: cmd, type, lenLow, lenHigh, crcLow, crcHigh
const BigDataHeaderSize = 6

// Channel 数据包所走的 GATT 特征
type Channel uint8

const (
	ChannelCommand Channel = 0x00
	ChannelBigData Channel = 0x01
)

// ChannelOf 根据指令字节判断数据包走哪条通道
func ChannelOf(packet []byte) Channel {
	if len(packet) > 0 && CmdID(packet[0]) == CmdBigDataV2 {
		return ChannelBigData
	}
	return ChannelCommand
}

// =============================================================================
// 中继帧 (Relay Frame) 常量
// =============================================================================

const (
	// RelayMagic 中继帧魔数 (0x4752 = "GR")
	RelayMagic uint16 = 0x4752
	// RelayVersion 当前中继协议版本
	RelayVersion uint8 = 0x01
	// RelayHeaderSize 固定头部大小
	RelayHeaderSize uint32 = 20
	// RelayFooterSize 固定尾部大小 (CRC32)
	RelayFooterSize uint32 = 4
	// RelayMaxPayload 单帧最大载荷
	RelayMaxPayload uint32 = 64 * 1024
)

// Frame 表示一个解码后的中继帧
type Frame struct {
	// Uplink 为 true 表示戒指 -> 主机
	Uplink bool
	// Hello 中继接入后发送的首帧，载荷为戒指标识（例如 BLE 地址）
	Hello bool
	// Channel 原始数据包对应的 GATT 特征
	Channel Channel
	// TimestampMs 中继收到/发出该包的时间 (Unix 毫秒)
	TimestampMs int64
	// Payload 原始戒指数据包
	Payload []byte
}

// RelayCodec 定义中继帧的封包与解包接口
type RelayCodec interface {
	// Pack 将一个戒指数据包封装为中继帧
	Pack(f Frame) ([]byte, error)

	// Unpack 从输入流中解析出一帧完整的中继帧
	Unpack(r io.Reader) (*Frame, error)
}
