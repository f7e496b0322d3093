package main

import (
	"fmt"
	"os"

	"github.com/lsm/churnflow/internal/cli"
)

const usage = `churnflow - customer-event scoring pipeline

Usage:
  churnflow <command> [arguments]

Commands:
  produce     Emit customer events into the input topic
  consume     Score events and publish predictions (batch or continuous)
  topics      Manage topic lifecycle (ensure, delete, flush, cleanup)
  analytics   Summarize the scored topic
  score       Score one event offline, without the broker

Run 'churnflow <command> -h' for help on a specific command.`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		return nil
	}

	switch os.Args[1] {
	case "produce":
		return cli.RunProduce(os.Args[2:])
	case "consume":
		return cli.RunConsume(os.Args[2:])
	case "topics":
		return cli.RunTopics(os.Args[2:])
	case "analytics":
		return cli.RunAnalytics(os.Args[2:])
	case "score":
		return cli.RunScore(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\nRun 'churnflow help' for usage", os.Args[1])
	}
}
