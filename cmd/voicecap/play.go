package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lisuiheng/voicecap/audio"
	"github.com/lisuiheng/voicecap/logger"
)

func (a *app) playCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "play <file.wav>",
		Short: "Play a WAV file on the selected playback device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pcm, rate, err := audio.ReadWAV(args[0])
			if err != nil {
				return err
			}
			m, err := a.manager()
			if err != nil {
				return err
			}
			if err := selectPlaybackDevice(m, a.cfg.Devices.Playback); err != nil {
				return fmt.Errorf("failed to select playback device: %w", err)
			}

			sound, err := m.CreateSound(pcm, rate)
			if err != nil {
				return err
			}
			defer func() {
				if err := m.ReleaseSound(sound); err != nil {
					logger.Warn("Failed to release sound", "error", err)
				}
			}()

			channel, err := m.PlaySound(sound)
			if err != nil {
				return err
			}
			logger.Info("Playing", "file", args[0], "sample_rate", rate, "samples", len(pcm))

			ticker := time.NewTicker(20 * time.Millisecond)
			defer ticker.Stop()
			for m.IsPlaying(channel) {
				select {
				case <-cmd.Context().Done():
					return m.StopChannel(channel)
				case <-ticker.C:
				}
			}
			return nil
		},
	}
}
