package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/lsm/churnflow/internal/model"
	"github.com/lsm/churnflow/internal/scoring"
)

// RunScore scores a single event offline, without the broker. Useful
// for inspecting what the model would do with one payload.
func RunScore(args []string) error {
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
		fmt.Println(`Usage: churnflow score --event <path|-> [options]

Scores one customer event with the model artifact and prints the
prediction as JSON. No broker connection is made.

Options:
  --event <path|->      Event JSON file, or - for stdin (required)
  --model <path>        Model artifact path (overrides config)
  --config <path>       Config file path
  --log-level <level>   debug, info, warn, or error

Examples:
  churnflow score --event sample-event.json
  cat sample-event.json | churnflow score --event -`)
		return nil
	}

	cfg, logger, err := loadRuntime("score", args)
	if err != nil {
		return err
	}

	eventPath, err := parseStringFlag(args, "--event")
	if err != nil {
		return err
	}
	if eventPath == "" {
		return fmt.Errorf("--event flag is required")
	}
	modelPath, err := parseStringFlag(args, "--model")
	if err != nil {
		return err
	}
	if modelPath == "" {
		modelPath = cfg.Model
	}

	m, err := model.Load(modelPath)
	if err != nil {
		return fmt.Errorf("load model artifact: %w", err)
	}
	engine := scoring.NewEngine(m)
	logger.Debug("model loaded", "path", modelPath, "version", engine.ModelVersion())

	var raw []byte
	if eventPath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(eventPath)
	}
	if err != nil {
		return fmt.Errorf("read event: %w", err)
	}

	prediction, err := engine.Score(raw)
	if err != nil {
		return fmt.Errorf("score event: %w", err)
	}

	printJSON(prediction)
	return nil
}
