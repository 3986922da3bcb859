package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"boletodesk/internal/console"
	"boletodesk/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories and backend reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			checked := *cfg
			token, source, err := console.LoadToken(cfg)
			if err != nil {
				return err
			}
			checked.Backend.Token = token

			results := preflight.RunAll(cmd.Context(), &checked)
			if ctx.jsonOutput() {
				return writeJSON(cmd, results)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("boletodesk doctor", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Config", statusInfo, describeConfigPath(ctx), colorize))
			fmt.Fprintln(out, renderStatusLine("Credential", statusInfo, string(source), colorize))
			failed := 0
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
					failed++
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func describeConfigPath(ctx *commandContext) string {
	if ctx.configExists {
		return ctx.configPath
	}
	return ctx.configPath + " (not found; defaults in use)"
}
