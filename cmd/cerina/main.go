package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/naveenvasou/cerina-v0/checkpoint"
	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/events"
	"github.com/naveenvasou/cerina-v0/graph"
	"github.com/naveenvasou/cerina-v0/history"
	"github.com/naveenvasou/cerina-v0/llm"
	"github.com/naveenvasou/cerina-v0/tools"
	"github.com/naveenvasou/cerina-v0/workflow"
)

func main() {
	app := &cli.Command{
		Name:  "cerina",
		Usage: "Checkpointed multi-agent CBT exercise workflow",
		Commands: []*cli.Command{
			runCmd(),
			resumeCmd(),
			statusCmd(),
			historyCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Start a workflow run for a thread",
		ArgsUsage: "<thread-id> <query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "script", Usage: "JSON file of scripted model responses (dry runs)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			threadID := cmd.Args().Get(0)
			query := cmd.Args().Get(1)
			if threadID == "" || query == "" {
				return fmt.Errorf("thread-id and query arguments are required")
			}

			runner, err := buildRunner(cmd.String("script"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			outcome, err := runner.Run(ctx, threadID, query, printEvent)
			if err != nil {
				return err
			}
			printOutcome(outcome)
			return nil
		},
	}
}

func resumeCmd() *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Answer a pending plan approval",
		ArgsUsage: "<thread-id> <approved|revised|rejected>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "feedback", Usage: "Feedback for a revised or rejected plan"},
			&cli.StringFlag{Name: "script", Usage: "JSON file of scripted model responses (dry runs)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			threadID := cmd.Args().Get(0)
			decision := cmd.Args().Get(1)
			if threadID == "" || decision == "" {
				return fmt.Errorf("thread-id and decision arguments are required")
			}

			runner, err := buildRunner(cmd.String("script"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			outcome, err := runner.Resume(ctx, threadID, workflow.Approval{
				Decision: decision,
				Feedback: cmd.String("feedback"),
			}, printEvent)
			if err != nil {
				return err
			}
			printOutcome(outcome)
			return nil
		},
	}
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show a thread's status",
		ArgsUsage: "<thread-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			threadID := cmd.Args().First()
			if threadID == "" {
				return fmt.Errorf("thread-id argument is required")
			}
			runner, err := buildRunner("")
			if err != nil {
				return err
			}
			status, err := runner.Status(ctx, threadID)
			if err != nil {
				return err
			}
			fmt.Println(status)
			return nil
		},
	}
}

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Print a thread's durable timeline",
		ArgsUsage: "<thread-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			threadID := cmd.Args().First()
			if threadID == "" {
				return fmt.Errorf("thread-id argument is required")
			}
			runner, err := buildRunner("")
			if err != nil {
				return err
			}
			entries, err := runner.History(ctx, threadID)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%4d %-22s %-12s %s\n", e.Sequence, e.ItemType, e.AgentName, e.Content)
			}
			return nil
		},
	}
}

// buildRunner wires stores from the environment. Without REDIS_URL the
// stores are in-memory, which only makes sense within one invocation;
// cross-invocation resume needs Redis.
func buildRunner(scriptPath string) (*workflow.Runner, error) {
	logger := core.NewJSONLogger("cerina")
	cfg, err := core.NewConfig()
	if err != nil {
		return nil, err
	}

	var checkpoints graph.CheckpointStore
	var historyStore history.Store
	if cfg.RedisURL != "" {
		rcp, err := checkpoint.NewRedisStore(cfg.RedisURL,
			checkpoint.WithTTL(cfg.CheckpointTTL),
			checkpoint.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		rh, err := history.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		checkpoints, historyStore = rcp, rh
	} else {
		checkpoints = checkpoint.NewMemoryStore()
		historyStore = history.NewMemoryStore()
	}

	provider, err := buildProvider(scriptPath)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry(logger)
	registry.RegisterSearch(staticSearch{})
	registry.RegisterSafetyChecker(conservativeChecker{})

	return workflow.NewRunner(provider, registry, checkpoints, historyStore, logger, cfg), nil
}

// buildProvider loads scripted responses for dry runs. Binding a real
// model API happens outside this module.
func buildProvider(scriptPath string) (llm.Provider, error) {
	if scriptPath == "" {
		return nil, fmt.Errorf("%w: --script is required (no model binding configured)", core.ErrMissingConfiguration)
	}
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	var script []*llm.Response
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	return &llm.Mock{Script: script}, nil
}

func printEvent(ev events.Event) error {
	switch ev.Type {
	case events.TypeThoughtChunk, events.TypeMessageChunk:
		fmt.Print(ev.Content)
	case events.TypeMessageEnd:
		fmt.Println()
	default:
		fmt.Printf("[%s] %s %s\n", ev.Type, ev.Agent, ev.Content)
	}
	return nil
}

func printOutcome(o *workflow.Outcome) {
	switch {
	case o.AwaitingApproval != nil:
		fmt.Printf("\nPlan awaiting approval on thread %s. Answer with: cerina resume %s <approved|revised|rejected>\n", o.ThreadID, o.ThreadID)
	case o.Completed:
		if o.FinalPresentation != "" {
			fmt.Printf("\n%s\n", o.FinalPresentation)
		}
	}
}

type staticSearch struct{}

func (staticSearch) Search(ctx context.Context, query string) (string, error) {
	return fmt.Sprintf("No guideline index configured. Treat %q as requiring standard CBT evidence anchors.", query), nil
}

type conservativeChecker struct{}

func (conservativeChecker) Check(ctx context.Context, planOverview string, riskFactors []string) (*tools.SafetyVerdict, error) {
	return &tools.SafetyVerdict{
		IsSafe:                len(riskFactors) == 0,
		RiskFlags:             riskFactors,
		RequiredModifications: nil,
		Reasoning:             "Static checker: flags pass through, no external protocol service configured.",
	}, nil
}
