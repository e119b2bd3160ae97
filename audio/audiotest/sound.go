package audiotest

import (
	"errors"
	"sync/atomic"

	"github.com/lisuiheng/voicecap/audio"
)

type FakeSound struct {
	samples    int
	sampleRate int
	released   atomic.Bool
}

func (s *FakeSound) Len() int        { return s.samples }
func (s *FakeSound) SampleRate() int { return s.sampleRate }

func (s *FakeSound) Release() error {
	if s.released.Swap(true) {
		return errors.New("sound already released")
	}
	return nil
}

func (s *FakeSound) Released() bool {
	return s.released.Load()
}

// FakeChannel 一直处于播放状态，直到 Finish 或 Stop
type FakeChannel struct {
	Device  audio.PlaybackDevice
	playing atomic.Bool
	stopped atomic.Bool
}

func (c *FakeChannel) IsPlaying() bool { return c.playing.Load() }

// Finish 模拟播放结束
func (c *FakeChannel) Finish() {
	c.playing.Store(false)
}

func (c *FakeChannel) Stop() error {
	c.playing.Store(false)
	c.stopped.Store(true)
	return nil
}

func (c *FakeChannel) Stopped() bool {
	return c.stopped.Load()
}
