package cmd

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/multirec/internal/service"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [take-name]",
	Short: "Execute pipeline steps on a take",
	Long:  `Execute the specified pipeline steps on a take. Use -p to specify which steps to run.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pipeline == "" {
			return fmt.Errorf("no pipeline specified, use -p flag (e.g., -p rp)")
		}

		svc, err := service.New(cfg, cfgFile)
		if err != nil {
			return err
		}
		defer svc.Close()

		return runSteps(svc, args[0], []rune(strings.ToLower(pipeline)))
	},
}
