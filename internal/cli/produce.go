package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/lsm/churnflow/internal/event"
	"github.com/lsm/churnflow/internal/kafka"
	"github.com/lsm/churnflow/internal/producer"
	"github.com/lsm/churnflow/internal/retry"
)

// newProducerPublisher creates the broker publisher for produce runs.
// Tests replace this to stub out the actual publisher.
var newProducerPublisher = func(cluster *kafka.ClusterConfig) (producer.Publisher, error) {
	return kafka.NewPublisher(cluster)
}

// RunProduce emits customer events into the input topic.
func RunProduce(args []string) error {
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
		fmt.Println(`Usage: churnflow produce [options]

Emits synthetic or replayed customer events into the input topic.

Options:
  --mode <streaming|batch>  Production mode (default: batch)
  --num-events <n>          Event count, batch mode (default: 100)
  --rate <n>                Events per second, streaming mode (default: 10)
  --duration <d>            Wall-clock bound, streaming mode (default: 30s)
  --file <path>             Replay events from a JSONL file instead of generating
  --seed <n>                Generator seed for reproducible events
  --config <path>           Config file path
  --brokers <addrs>         Broker addresses, comma separated
  --log-level <level>       debug, info, warn, or error

Examples:
  # Exactly 500 synthetic events
  churnflow produce --mode batch --num-events 500

  # 50 events/s for two minutes
  churnflow produce --mode streaming --rate 50 --duration 2m

  # Replay a captured event file
  churnflow produce --mode batch --num-events 100 --file events.jsonl`)
		return nil
	}

	cfg, logger, err := loadRuntime("producer", args)
	if err != nil {
		return err
	}

	mode, err := parseStringFlag(args, "--mode")
	if err != nil {
		return err
	}
	if mode == "" {
		mode = string(producer.ModeBatch)
	}
	numEvents, err := parseIntFlag(args, "--num-events", 100)
	if err != nil {
		return err
	}
	rate, err := parseFloatFlag(args, "--rate", 10)
	if err != nil {
		return err
	}
	duration, err := parseDurationFlag(args, "--duration", 30*time.Second)
	if err != nil {
		return err
	}
	filePath, err := parseStringFlag(args, "--file")
	if err != nil {
		return err
	}
	seed, err := parseIntFlag(args, "--seed", int(time.Now().UnixNano()&0x7fffffff))
	if err != nil {
		return err
	}

	pcfg := producer.Config{
		Topic:     cfg.Topics.Input.Name,
		Mode:      producer.Mode(mode),
		Rate:      rate,
		Duration:  duration,
		NumEvents: numEvents,
		Retry:     retry.DefaultPolicy(),
	}

	gen := event.NewGenerator(uint64(seed))
	next := producer.NextEvent(func() (*event.CustomerEvent, error) {
		return gen.Next(), nil
	})
	if filePath != "" {
		source, closeSource, err := fileSource(filePath)
		if err != nil {
			return err
		}
		defer func() { _ = closeSource() }()
		next = source
	}

	pub, err := newProducerPublisher(&cfg.Cluster)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	defer func() { _ = pub.Close() }()

	p, err := producer.New(pcfg, pub, next, logger, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	start := time.Now()
	produced, runErr := p.Run(ctx)

	printJSON(map[string]any{
		"topic":    pcfg.Topic,
		"mode":     mode,
		"produced": produced,
		"duration": time.Since(start).String(),
	})
	return runErr
}

// fileSource replays one JSON event per line from a JSONL file.
func fileSource(path string) (producer.NextEvent, func() error, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open event file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	lineNum := 0
	next := func() (*event.CustomerEvent, error) {
		for scanner.Scan() {
			lineNum++
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var evt event.CustomerEvent
			if err := json.Unmarshal(line, &evt); err != nil {
				return nil, fmt.Errorf("invalid event on line %d: %w", lineNum, err)
			}
			return &evt, nil
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read event file: %w", err)
		}
		return nil, io.EOF
	}
	return next, file.Close, nil
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(out))
}
