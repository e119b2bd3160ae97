package audiotest

import (
	"errors"
	"sync"

	"github.com/lisuiheng/voicecap/audio"
)

// FakeStream 假采集流，Feed 相当于驱动回调
type FakeStream struct {
	ring *audio.CaptureRing

	mu       sync.Mutex
	startErr error
	posErr   error
	readErr  error
	started  bool
	closed   bool
}

var _ audio.CaptureStream = (*FakeStream)(nil)

// Feed 写入采样，推进写指针
func (s *FakeStream) Feed(samples []float32) {
	s.ring.Write(samples)
}

// SetPositionError 之后的 Position 都返回 err，nil 恢复
func (s *FakeStream) SetPositionError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posErr = err
}

// SetReadError 之后的 Read 都返回 err，nil 恢复
func (s *FakeStream) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

func (s *FakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *FakeStream) Len() int {
	return s.ring.Len()
}

func (s *FakeStream) Position() (int, error) {
	s.mu.Lock()
	err := s.posErr
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.ring.Position(), nil
}

func (s *FakeStream) Read(from, to int) ([]float32, error) {
	s.mu.Lock()
	err := s.readErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.ring.Read(from, to)
}

func (s *FakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stream already closed")
	}
	s.closed = true
	s.started = false
	return nil
}

func (s *FakeStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Ramp 生成 start, start+1, ... 共 n 个采样，方便检查顺序
func Ramp(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}
