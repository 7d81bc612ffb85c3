package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BDNK1/lowflow/runtime"
)

var (
	runInput     map[string]string
	runInputJSON string
	runUser      string
)

var runCmd = &cobra.Command{
	Use:   "run <flow-id>",
	Short: "Execute one flow and print its result",
	Long: `Run loads the configured flows and store, executes a single flow and
prints the run result together with every UI effect the flow produced.

Example:
  lowflow run checkout --input orderId=O1
  lowflow run import --input-json '{"rows": [1, 2, 3]}'
`,
	Args: cobra.ExactArgs(1),
	RunE: runFlow,
}

func init() {
	runCmd.Flags().StringToStringVar(&runInput, "input", nil, "Input value as key=value (repeatable)")
	runCmd.Flags().StringVar(&runInputJSON, "input-json", "", "Input object as JSON")
	runCmd.Flags().StringVar(&runUser, "user", "", "Id of the user the run acts for")
}

type runOutput struct {
	Result  *runtime.RunResult `json:"result,omitempty"`
	Effects []runtime.Effect   `json:"effects"`
	Error   map[string]any     `json:"error,omitempty"`
}

func runFlow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l := newLogger(cfg.Log)
	ctx := cmd.Context()

	input, err := parseInput(runInput, runInputJSON)
	if err != nil {
		return err
	}

	flows, err := loadFlows(cfg.Flows)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, l, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier := runtime.NewRecordingNotifier()
	engine := runtime.New(store, notifier, runtime.WithLogger(l), runtime.WithConfig(cfg.Engine))
	defer engine.Destroy()
	if err := engine.Init(ctx, cfg.Project); err != nil {
		return err
	}
	for _, f := range flows {
		if err := engine.RegisterFlow(f); err != nil {
			return err
		}
	}

	result, runErr := engine.Trigger(ctx, runtime.TriggerContext{
		FlowID: args[0],
		Input:  input,
		User:   runUser,
	})

	out := runOutput{Result: result, Effects: notifier.Effects()}
	var fe *runtime.FlowError
	if errors.As(runErr, &fe) {
		out.Error = fe.ToMap()
	} else if runErr != nil {
		out.Error = map[string]any{"message": runErr.Error()}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	return runErr
}

func parseInput(pairs map[string]string, raw string) (map[string]any, error) {
	input := make(map[string]any, len(pairs))
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return nil, fmt.Errorf("invalid --input-json: %w", err)
		}
	}
	for k, v := range pairs {
		input[k] = v
	}
	return input, nil
}
