package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/lisuiheng/voicecap/audio"
	"github.com/lisuiheng/voicecap/logger"
)

func (a *app) recordCommand() *cobra.Command {
	var (
		duration time.Duration
		raw      bool
		output   string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the selected device and report encoded frames, or save raw PCM as WAV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if raw && output == "" {
				return errors.New("--raw requires --output")
			}
			m, err := a.manager()
			if err != nil {
				return err
			}
			if err := selectRecordingDevice(m, a.cfg.Devices.Recording); err != nil {
				return fmt.Errorf("failed to select recording device: %w", err)
			}
			logger.Info("Recording", "device", m.CurrentRecordingDevice().String(), "duration", duration, "raw", raw)

			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()
			if raw {
				return recordRaw(ctx, m, output)
			}
			return recordFrames(ctx, m)
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 5*time.Second, "How long to record")
	cmd.Flags().BoolVar(&raw, "raw", false, "Deliver raw PCM instead of encoded frames")
	cmd.Flags().StringVarP(&output, "output", "o", "", "WAV file to write in raw mode")
	return cmd
}

func recordFrames(ctx context.Context, m *audio.Manager) error {
	var frames, bytes atomic.Int64
	err := m.StartRecording(func(frame audio.EncodedFrame) {
		frames.Add(1)
		bytes.Add(int64(len(frame.Data)))
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	m.StopRecording()
	if err := waitStopped(m); err != nil {
		return err
	}
	logger.Info("Recording finished",
		"frames", frames.Load(),
		"bytes", bytes.Load(),
		"audio", time.Duration(frames.Load())*audio.ChunkRecordTime)
	return nil
}

func recordRaw(ctx context.Context, m *audio.Manager, path string) error {
	w, err := audio.NewWAVRecorder(path, audio.TargetSampleRate)
	if err != nil {
		return err
	}
	if err := m.StartRecordingRaw(w.Write); err != nil {
		_ = w.Close()
		return err
	}

	<-ctx.Done()
	m.StopRecording()
	werr := waitStopped(m)
	if err := w.Close(); err != nil {
		return err
	}
	if werr != nil {
		return werr
	}
	logger.Info("Saved recording", "path", path, "samples", w.Samples())
	return nil
}

// waitStopped 等待音频线程处理完 stop，返回会话期间的异步错误
func waitStopped(m *audio.Manager) error {
	deadline := time.Now().Add(2 * time.Second)
	for m.IsRecording() {
		if time.Now().After(deadline) {
			m.HaltRecording()
			return errors.New("timed out waiting for recording to stop")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return m.LastError()
}
