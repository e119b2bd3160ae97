package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List recording and playback devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager()
			if err != nil {
				return err
			}
			recording, err := m.RecordingDevices()
			if err != nil {
				return fmt.Errorf("failed to list recording devices: %w", err)
			}
			playback, err := m.PlaybackDevices()
			if err != nil {
				return fmt.Errorf("failed to list playback devices: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Recording devices (%s):\n", m.Backend().Name())
			fmt.Fprintln(w, "  ID\tNAME\tRATE\tMODE\tDEFAULT")
			for _, d := range recording {
				fmt.Fprintf(w, "  %d\t%s\t%d\t%s\t%v\n", d.ID, d.Name, d.SampleRate, d.SpeakerMode, d.State.Default())
			}
			fmt.Fprintln(w, "Playback devices:")
			fmt.Fprintln(w, "  ID\tNAME\tRATE\tMODE\t")
			for _, d := range playback {
				fmt.Fprintf(w, "  %d\t%s\t%d\t%s\t\n", d.ID, d.Name, d.SampleRate, d.SpeakerMode)
			}
			return w.Flush()
		},
	}
}
