package audio

import "fmt"

// SpeakerMode 声道布局
type SpeakerMode int

const (
	SpeakerModeDefault SpeakerMode = iota
	SpeakerModeMono
	SpeakerModeStereo
	SpeakerModeQuad
	SpeakerModeSurround
	SpeakerMode5Point1
	SpeakerMode7Point1
	SpeakerModeRaw
)

// SpeakerModeFromChannels 根据声道数推断布局
func SpeakerModeFromChannels(channels int) SpeakerMode {
	switch channels {
	case 0:
		return SpeakerModeDefault
	case 1:
		return SpeakerModeMono
	case 2:
		return SpeakerModeStereo
	case 4:
		return SpeakerModeQuad
	case 5:
		return SpeakerModeSurround
	case 6:
		return SpeakerMode5Point1
	case 8:
		return SpeakerMode7Point1
	default:
		return SpeakerModeRaw
	}
}

func (m SpeakerMode) String() string {
	switch m {
	case SpeakerModeMono:
		return "mono"
	case SpeakerModeStereo:
		return "stereo"
	case SpeakerModeQuad:
		return "quad"
	case SpeakerModeSurround:
		return "surround"
	case SpeakerMode5Point1:
		return "5.1"
	case SpeakerMode7Point1:
		return "7.1"
	case SpeakerModeRaw:
		return "raw"
	default:
		return "default"
	}
}

// DriverState 设备驱动状态标志
type DriverState uint32

const (
	DriverStateConnected DriverState = 1 << iota
	DriverStateDefault
)

func (s DriverState) Connected() bool { return s&DriverStateConnected != 0 }
func (s DriverState) Default() bool   { return s&DriverStateDefault != 0 }

// RecordingDevice 枚举时得到的录音设备快照
type RecordingDevice struct {
	ID          int
	Name        string
	GUID        string
	SampleRate  int
	SpeakerMode SpeakerMode
	Channels    int
	State       DriverState
}

// PlaybackDevice 枚举时得到的播放设备快照
type PlaybackDevice struct {
	ID          int
	Name        string
	GUID        string
	SampleRate  int
	SpeakerMode SpeakerMode
	Channels    int
}

// Valid 设备是否已设置
func (d RecordingDevice) Valid() bool { return d.ID != InvalidDeviceID }
func (d PlaybackDevice) Valid() bool  { return d.ID != InvalidDeviceID }

func (d RecordingDevice) String() string {
	return fmt.Sprintf("#%d %s (%d Hz, %s)", d.ID, d.Name, d.SampleRate, d.SpeakerMode)
}

func (d PlaybackDevice) String() string {
	return fmt.Sprintf("#%d %s (%d Hz, %s)", d.ID, d.Name, d.SampleRate, d.SpeakerMode)
}

var (
	unsetRecordingDevice = RecordingDevice{ID: InvalidDeviceID}
	unsetPlaybackDevice  = PlaybackDevice{ID: InvalidDeviceID}
)

func findRecordingDevice(devices []RecordingDevice, id int) (RecordingDevice, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return unsetRecordingDevice, false
}

func findPlaybackDevice(devices []PlaybackDevice, id int) (PlaybackDevice, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return unsetPlaybackDevice, false
}
