package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lisuiheng/voicecap/audio"
	"github.com/lisuiheng/voicecap/core"
	"github.com/lisuiheng/voicecap/logger"
)

func (a *app) streamCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stream",
		Short: "Connect to the voice server and stream the microphone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			m, err := a.manager()
			if err != nil {
				return err
			}
			if err := selectRecordingDevice(m, a.cfg.Devices.Recording); err != nil {
				return fmt.Errorf("failed to select recording device: %w", err)
			}
			if err := selectPlaybackDevice(m, a.cfg.Devices.Playback); err != nil {
				return fmt.Errorf("failed to select playback device: %w", err)
			}

			decoder, err := audio.NewOpusDecoder(audio.TargetSampleRate, audio.Channels, logger.Logger())
			if err != nil {
				return err
			}
			defer decoder.Close()

			client, err := core.NewClient(a.cfg, m, decoder, logger.Logger())
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer func() {
				if err := client.Close(); err != nil {
					logger.Error("Failed to close client", "error", err)
				}
			}()

			logger.Info("Starting voice stream", "url", a.cfg.Network.Websocket.URL)
			if err := client.Run(cmd.Context()); err != nil {
				return fmt.Errorf("service runtime error: %w", err)
			}
			logger.Info("Received signal, shutting down")
			return nil
		},
	}
}
