package audio

import (
	"fmt"
	"sync"
)

// CaptureRing 后端使用的环形采集缓冲区。
// 驱动线程通过 Write 写入，音频线程根据写指针 Position 读取新数据。
type CaptureRing struct {
	mu  sync.Mutex
	buf []float32
	pos int
}

func NewCaptureRing(length int) *CaptureRing {
	if length <= 0 {
		length = FrameSize
	}
	return &CaptureRing{buf: make([]float32, length)}
}

// Write 写入采样，到达末尾后回绕
func (r *CaptureRing) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 一次写入超过整个缓冲区时只保留最后 len(buf) 个
	if len(samples) > len(r.buf) {
		skipped := len(samples) - len(r.buf)
		samples = samples[skipped:]
		r.pos = (r.pos + skipped) % len(r.buf)
	}
	for len(samples) > 0 {
		n := copy(r.buf[r.pos:], samples)
		samples = samples[n:]
		r.pos = (r.pos + n) % len(r.buf)
	}
}

// Position 当前写指针
func (r *CaptureRing) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

func (r *CaptureRing) Len() int {
	return len(r.buf)
}

// Read 复制 [from, to) 区间的采样，要求 0 <= from <= to <= Len()
func (r *CaptureRing) Read(from, to int) ([]float32, error) {
	if from < 0 || to > len(r.buf) || from > to {
		return nil, fmt.Errorf("%w: range [%d, %d) outside ring of %d", ErrBackendRead, from, to, len(r.buf))
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]float32, to-from)
	copy(out, r.buf[from:to])
	return out, nil
}
