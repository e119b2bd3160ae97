// audio/interface.go
package audio

// Backend 平台音频子系统：设备枚举、采集流、声音播放
type Backend interface {
	Name() string
	RecordingDevices() ([]RecordingDevice, error)
	PlaybackDevices() ([]PlaybackDevice, error)
	// OpenRecording 打开一个采集流，采集尚未开始
	OpenRecording(device RecordingDevice, sampleRate, channels int) (CaptureStream, error)
	// CreateSound 从 PCM 创建一个可播放的声音
	CreateSound(pcm []float32, sampleRate int) (Sound, error)
	PlaySound(sound Sound, device PlaybackDevice) (Channel, error)
	Close() error
}

// CaptureStream 环形采集缓冲区，Position 为写指针
type CaptureStream interface {
	Start() error
	Len() int
	Position() (int, error)
	// Read 复制 [from, to) 的采样，from <= to
	Read(from, to int) ([]float32, error)
	Close() error
}

// Sound 后端管理的声音对象
type Sound interface {
	Len() int
	SampleRate() int
	Release() error
}

// Channel 正在播放的声音
type Channel interface {
	IsPlaying() bool
	Stop() error
}
