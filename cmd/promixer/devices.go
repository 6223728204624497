package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.Log)

		backend, err := openBackend(cfg.Audio.Backend, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		engine, err := newEngine(cfg, backend, logger, nil)
		if err != nil {
			return err
		}
		devs, err := engine.Devices()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tHOST API\tIN\tOUT\tRATE\tDEFAULT")
		for _, d := range devs {
			def := ""
			switch {
			case d.IsDefaultInput && d.IsDefaultOutput:
				def = "in/out"
			case d.IsDefaultInput:
				def = "in"
			case d.IsDefaultOutput:
				def = "out"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%.0f\t%s\n",
				d.ID, d.Name, d.HostAPI, d.InputChannels, d.OutputChannels, d.SampleRate, def)
		}
		return w.Flush()
	},
}
