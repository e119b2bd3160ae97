//go:build voicedebug

package audio

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
)

// markAudioThread 记录音频线程的 goroutine id
func (m *Manager) markAudioThread() {
	m.audioGoroutine.Store(goroutineID())
}

// assertNotAudioThread 状态修改类调用不能来自音频线程（包括回调内部）
func (m *Manager) assertNotAudioThread(op string) {
	if id := m.audioGoroutine.Load(); id != 0 && id == goroutineID() {
		panic(fmt.Sprintf("audio: %s called from the audio thread", op))
	}
}

func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 123 [running]:"
	field := bytes.Fields(bytes.TrimPrefix(buf[:n], []byte("goroutine ")))
	if len(field) == 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(field[0]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
