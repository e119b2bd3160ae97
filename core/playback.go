package core

import (
	"time"

	"github.com/lisuiheng/voicecap/audio"
)

type playback struct {
	sound   audio.SoundHandle
	channel audio.ChannelHandle
}

// playbackLoop 顺序播放解码后的语音：上一段播完后，把期间收到的采样合成一个声音播放
func (c *Client) playbackLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(playbackPollInterval)
	defer ticker.Stop()

	var (
		pending []float32
		current *playback
	)
	for {
		select {
		case <-c.closeChan:
			c.finishPlayback(current, true)
			return
		case pcm := <-c.playChan:
			pending = append(pending, pcm...)
		case <-c.flushPlayChan:
			c.finishPlayback(current, true)
			current = nil
			pending = nil
			continue
		case <-ticker.C:
		}

		if current != nil && !c.isPlaying(current) {
			c.finishPlayback(current, false)
			current = nil
		}
		if current == nil && len(pending) > 0 {
			current = c.play(pending)
			pending = nil
		}
	}
}

func (c *Client) play(pcm []float32) *playback {
	c.voiceMu.Lock()
	defer c.voiceMu.Unlock()

	sound, err := c.voice.CreateSound(pcm, audio.TargetSampleRate)
	if err != nil {
		c.logger.Error("Failed to create sound", "samples", len(pcm), "error", err)
		return nil
	}
	channel, err := c.voice.PlaySound(sound)
	if err != nil {
		c.logger.Error("Failed to play sound", "error", err)
		_ = c.voice.ReleaseSound(sound)
		return nil
	}
	c.logger.Debug("Playing audio", "samples", len(pcm))
	return &playback{sound: sound, channel: channel}
}

func (c *Client) isPlaying(p *playback) bool {
	c.voiceMu.Lock()
	defer c.voiceMu.Unlock()
	return c.voice.IsPlaying(p.channel)
}

func (c *Client) finishPlayback(p *playback, stop bool) {
	if p == nil {
		return
	}
	c.voiceMu.Lock()
	defer c.voiceMu.Unlock()
	if stop {
		if err := c.voice.StopChannel(p.channel); err != nil {
			c.logger.Debug("Failed to stop channel", "error", err)
		}
	}
	if err := c.voice.ReleaseSound(p.sound); err != nil {
		c.logger.Debug("Failed to release sound", "error", err)
	}
}

// flushPlayback 丢弃正在播放和排队的语音
func (c *Client) flushPlayback() {
drain:
	for {
		select {
		case <-c.playChan:
		default:
			break drain
		}
	}
	select {
	case c.flushPlayChan <- struct{}{}:
	default:
	}
}
