package audio

// EncodedFrame 一帧压缩后的语音数据，对本包来说是不透明的
type EncodedFrame struct {
	Data []byte
	// Sequence 本次录音会话内的帧序号，从 0 开始
	Sequence uint64
	// Samples 编码前的采样数，总是 FrameSize
	Samples int
}

// FrameEncoder 把 FrameSize 个单声道采样编码为一帧
type FrameEncoder interface {
	Encode(pcm []float32) ([]byte, error)
}

// FrameDecoder 把一帧还原为 PCM
type FrameDecoder interface {
	Decode(data []byte) ([]float32, error)
}

// FrameCallback 在音频线程上被调用，每个完整帧一次
type FrameCallback func(frame EncodedFrame)

// RawCallback 在音频线程上被调用，参数为本次新采集到的采样
type RawCallback func(pcm []float32)
