package audio

import (
	"errors"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"
)

const bytesPerSample = 4

// PlaybackBuffer 驱动回调从中取 float32 采样，取空后视为播放结束
type PlaybackBuffer struct {
	rb       *ringbuffer.RingBuffer
	finished atomic.Bool
	scratch  []byte
}

// NewPlaybackBuffer 把整段声音写入环形缓冲区
func NewPlaybackBuffer(pcm []float32) (*PlaybackBuffer, error) {
	if len(pcm) == 0 {
		return nil, errors.New("nothing to play")
	}
	data := Float32ToBytes(pcm)
	rb := ringbuffer.New(len(data))
	n, err := rb.Write(data)
	if err != nil {
		return nil, err
	}
	if n < len(data) {
		return nil, ringbuffer.ErrIsFull
	}
	return &PlaybackBuffer{rb: rb}, nil
}

// Fill 填充 out（单声道），不足部分补零，返回写入的采样数。只能在一个驱动线程上调用。
func (b *PlaybackBuffer) Fill(out []float32) int {
	need := len(out) * bytesPerSample
	if cap(b.scratch) < need {
		b.scratch = make([]byte, need)
	}
	buf := b.scratch[:need]

	n, err := b.rb.Read(buf)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		n = 0
	}
	samples := n / bytesPerSample
	copy(out, BytesToFloat32(buf[:samples*bytesPerSample]))
	clear(out[samples:])
	if b.rb.IsEmpty() {
		b.finished.Store(true)
	}
	return samples
}

// Finished 所有采样都已交给驱动
func (b *PlaybackBuffer) Finished() bool {
	return b.finished.Load()
}

// Stop 丢弃剩余采样
func (b *PlaybackBuffer) Stop() {
	b.rb.Reset()
	b.finished.Store(true)
}
