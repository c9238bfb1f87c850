package transport

import (
	"github.com/google/uuid"
	"github.com/nhirsama/Goster-Ring/src/inter"
)

// 戒指 GATT 服务与特征
// 指令通道走 Nordic UART 风格的服务，大数据走厂商自定义服务
var (
	CommandServiceUUID = uuid.MustParse("6e40fff0-b5a3-f393-e0a9-e50e24dcca9e")
	CommandWriteUUID   = uuid.MustParse("6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	CommandNotifyUUID  = uuid.MustParse("6e400003-b5a3-f393-e0a9-e50e24dcca9e")

	BigDataServiceUUID = uuid.MustParse("de5bf728-d711-4e47-af26-65e3012a5dc7")
	BigDataWriteUUID   = uuid.MustParse("de5bf72a-d711-4e47-af26-65e3012a5dc7")
	BigDataNotifyUUID  = uuid.MustParse("de5bf729-d711-4e47-af26-65e3012a5dc7")

	DeviceInfoServiceUUID  = uuid.MustParse("0000180A-0000-1000-8000-00805F9B34FB")
	DeviceInfoHardwareUUID = uuid.MustParse("00002A27-0000-1000-8000-00805F9B34FB")
	DeviceInfoFirmwareUUID = uuid.MustParse("00002A26-0000-1000-8000-00805F9B34FB")
)

// WriteCharacteristic 数据包应写入的特征
func WriteCharacteristic(packet []byte) uuid.UUID {
	if inter.ChannelOf(packet) == inter.ChannelBigData {
		return BigDataWriteUUID
	}
	return CommandWriteUUID
}

// ChannelForNotify 通知特征对应的逻辑通道，未知特征返回 false
func ChannelForNotify(id uuid.UUID) (inter.Channel, bool) {
	switch id {
	case CommandNotifyUUID:
		return inter.ChannelCommand, true
	case BigDataNotifyUUID:
		return inter.ChannelBigData, true
	}
	return 0, false
}
