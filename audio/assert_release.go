//go:build !voicedebug

package audio

func (m *Manager) markAudioThread() {}

func (m *Manager) assertNotAudioThread(string) {}
