package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"tourguide/internal/bootstrap"
	"tourguide/internal/entity"
	"tourguide/internal/tourfile"
	"tourguide/internal/usecase"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newPlayCommand() *cobra.Command {
	var (
		tourPath  string
		url       string
		onFailure string
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a tour in the editor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			decision := entity.StepDecision(onFailure)
			switch decision {
			case entity.DecisionSkip, entity.DecisionStop, entity.DecisionRetry:
			default:
				return fmt.Errorf("--on-failure must be skip, stop or retry, got %q", onFailure)
			}

			tour, err := tourfile.Load(tourPath)
			if err != nil {
				return err
			}

			return bootstrap.Run(func(ctx context.Context, svc *usecase.Service) error {
				if err := openURL(ctx, svc, url); err != nil {
					return err
				}

				report, err := svc.Playback.Play(ctx, tour, cliHooks(svc, decision))
				if err != nil {
					return err
				}

				return printJSON(report)
			})
		},
	}

	cmd.Flags().StringVar(&tourPath, "tour", "", "tour file to play")
	cmd.Flags().StringVar(&url, "url", "", "editor URL to open first (defaults to EDITOR_URL)")
	cmd.Flags().StringVar(&onFailure, "on-failure", string(entity.DecisionSkip), "what to do with a failed step: skip, stop or retry")
	_ = cmd.MarkFlagRequired("tour")

	return cmd
}

func newCaptureCommand() *cobra.Command {
	var (
		selector string
		inFrame  bool
		outPath  string
		title    string
		url      string
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a target for the element matching a CSS selector",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bootstrap.Run(func(ctx context.Context, svc *usecase.Service) error {
				if err := openURL(ctx, svc, url); err != nil {
					return err
				}

				res, err := svc.Authoring.Capture(ctx, selector, inFrame)
				if err != nil {
					return err
				}

				if outPath == "" {
					return printJSON(res)
				}

				tour, err := tourfile.Load(outPath)
				if errors.Is(err, os.ErrNotExist) {
					tour, err = &entity.Tour{ID: uuid.New(), Title: title}, nil
				}
				if err != nil {
					return err
				}

				elementContext := res.ElementContext
				st := tourfile.AppendStep(tour, entity.Step{
					Title:          title,
					Target:         res.Target,
					ElementContext: &elementContext,
					Completion:     entity.Completion{Type: entity.CompletionManual},
				})

				if err := tourfile.Save(outPath, tour); err != nil {
					return err
				}

				return printJSON(st)
			})
		},
	}

	cmd.Flags().StringVar(&selector, "selector", "", "CSS selector of the picked element")
	cmd.Flags().BoolVar(&inFrame, "frame", false, "pick inside the editor canvas frame")
	cmd.Flags().StringVar(&outPath, "out", "", "append the captured step to this tour file")
	cmd.Flags().StringVar(&title, "title", "", "title of the appended step")
	cmd.Flags().StringVar(&url, "url", "", "editor URL to open first (defaults to EDITOR_URL)")
	_ = cmd.MarkFlagRequired("selector")

	return cmd
}

func newTestCommand() *cobra.Command {
	var (
		tourPath string
		stepID   string
		url      string
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check that a step's target resolves on the current page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tour, err := tourfile.Load(tourPath)
			if err != nil {
				return err
			}

			st, err := tourfile.FindStep(tour, stepID)
			if err != nil {
				return err
			}

			return bootstrap.Run(func(ctx context.Context, svc *usecase.Service) error {
				if err := openURL(ctx, svc, url); err != nil {
					return err
				}

				report, err := svc.Authoring.TestTarget(ctx, st.Target)
				if err != nil {
					return err
				}

				return printJSON(report)
			})
		},
	}

	cmd.Flags().StringVar(&tourPath, "tour", "", "tour file")
	cmd.Flags().StringVar(&stepID, "step", "", "id of the step to test")
	cmd.Flags().StringVar(&url, "url", "", "editor URL to open first (defaults to EDITOR_URL)")
	_ = cmd.MarkFlagRequired("tour")
	_ = cmd.MarkFlagRequired("step")

	return cmd
}

func newConsoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Start the interactive console",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return bootstrap.RunConsole()
		},
	}
}

func openURL(ctx context.Context, svc *usecase.Service, url string) error {
	if url == "" {
		return nil
	}

	return svc.Browser.Navigate(ctx, url)
}

// cliHooks prints progress to stdout. Manual steps are confirmed with Enter.
func cliHooks(svc *usecase.Service, onFailure entity.StepDecision) entity.PlaybackHooks {
	lines := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- struct{}{}
		}
		close(lines)
	}()

	return entity.PlaybackHooks{
		OnStepStart: func(st entity.Step, index, total int) {
			fmt.Printf("Step %d/%d: %s\n", index+1, total, st.Title)
		},
		OnAwaiting: func(st entity.Step, _ *entity.ElementInfo) {
			if st.Completion.Type != entity.CompletionManual {
				return
			}

			fmt.Println("  press Enter when done")

			go func() {
				if _, ok := <-lines; ok {
					svc.Playback.Confirm()
				}
			}()
		},
		OnStepCompleted: func(st entity.Step, _ entity.CompletionResult) {
			fmt.Printf("  done\n")
		},
		OnStepFailed: func(st entity.Step, failure entity.StepFailure) entity.StepDecision {
			fmt.Printf("  failed: %s (%s)\n", failure.Reason, onFailure)

			return onFailure
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
