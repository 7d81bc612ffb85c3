package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BDNK1/lowflow/runtime"
	"github.com/BDNK1/lowflow/runtime/engine/yaml"
)

var validateCmd = &cobra.Command{
	Use:   "validate [flow-file-or-dir...]",
	Short: "Check flow definitions for structural errors",
	Long: `Validate loads flow files and reports every flow that would be rejected
before execution: missing or duplicate start nodes, dangling edges,
unpaired loops, cycles outside loops and invalid node configs.

Without arguments the flows directory of the config file is checked.

Example:
  lowflow validate
  lowflow validate ./flows/checkout.yaml
`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	engineCfg := runtime.NewConfig()
	if len(args) == 0 {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engineCfg = cfg.Engine
		args = []string{cfg.Flows}
	}

	flows, err := loadFlows(args...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, f := range flows {
		if err := runtime.Validate(f, engineCfg); err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", f.ID, err)
			continue
		}
		fmt.Fprintf(out, "ok   %s\n", f.ID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d flow(s) failed validation", failed, len(flows))
	}
	return nil
}

// loadFlows loads flow files, expanding directories.
func loadFlows(paths ...string) ([]*runtime.Flow, error) {
	loader := yaml.NewFlowLoader()
	var flows []*runtime.Flow
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", p, err)
		}
		if info.IsDir() {
			dirFlows, err := yaml.LoadDir(loader, p)
			if err != nil {
				return nil, err
			}
			flows = append(flows, dirFlows...)
			continue
		}
		flow, err := loader.Load(p)
		if err != nil {
			return nil, err
		}
		flows = append(flows, &flow)
	}
	return flows, nil
}
