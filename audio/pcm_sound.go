package audio

import (
	"errors"
	"sync/atomic"
)

// PCMSound 内存中的单声道声音，后端可以直接用它实现 Sound
type PCMSound struct {
	pcm        []float32
	sampleRate int
	released   atomic.Bool
}

// NewPCMSound 复制 pcm
func NewPCMSound(pcm []float32, sampleRate int) *PCMSound {
	return &PCMSound{pcm: append([]float32(nil), pcm...), sampleRate: sampleRate}
}

func (s *PCMSound) Len() int        { return len(s.pcm) }
func (s *PCMSound) SampleRate() int { return s.sampleRate }

// PCM 返回采样，声音释放后返回 nil
func (s *PCMSound) PCM() []float32 {
	if s.released.Load() {
		return nil
	}
	return s.pcm
}

func (s *PCMSound) Release() error {
	if s.released.Swap(true) {
		return errors.New("sound already released")
	}
	return nil
}

// Resample 线性插值重采样，用于后端无法以目标采样率打开设备时
func Resample(pcm []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(pcm) == 0 {
		return pcm
	}
	n := int(int64(len(pcm)) * int64(to) / int64(from))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	for i := range out {
		x := float64(i) * step
		j := int(x)
		if j >= len(pcm)-1 {
			out[i] = pcm[len(pcm)-1]
			continue
		}
		frac := float32(x - float64(j))
		out[i] = pcm[j]*(1-frac) + pcm[j+1]*frac
	}
	return out
}
