package audiotest

import (
	"errors"
	"sync"
)

var ErrEncode = errors.New("fake encoder failure")

// FakeEncoder 记录每次 Encode 的输入，可以让指定的调用失败
type FakeEncoder struct {
	mu     sync.Mutex
	inputs [][]float32
	failOn map[int]bool
}

// FailOn 第 n 次调用（从 0 开始）返回 ErrEncode
func (e *FakeEncoder) FailOn(calls ...int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failOn == nil {
		e.failOn = make(map[int]bool)
	}
	for _, n := range calls {
		e.failOn[n] = true
	}
}

func (e *FakeEncoder) Encode(pcm []float32) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	call := len(e.inputs)
	e.inputs = append(e.inputs, append([]float32(nil), pcm...))
	if e.failOn[call] {
		return nil, ErrEncode
	}
	return []byte{byte(call), byte(len(pcm) >> 8), byte(len(pcm))}, nil
}

func (e *FakeEncoder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inputs)
}

// Inputs 每次调用收到的采样
func (e *FakeEncoder) Inputs() [][]float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]float32(nil), e.inputs...)
}
