package audio

import "time"

// 语音帧参数，编码器必须满足这组约定
const (
	TargetSampleRate = 24000
	ChunkRecordTime  = 60 * time.Millisecond
	FrameSize        = TargetSampleRate * int(ChunkRecordTime/time.Millisecond) / 1000 // 1440
	Channels         = 1

	// DefaultRecordBufferFrames 采样队列默认预留的帧数
	DefaultRecordBufferFrames = 10

	// InvalidDeviceID 表示未选择设备
	InvalidDeviceID = -1
)
