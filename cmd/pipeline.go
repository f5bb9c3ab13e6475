package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/audiolibrelab/multirec/internal/service"
)

const pipelineSteps = "r=record, p=play"

// executePipeline runs the pipeline steps that follow startStep
func executePipeline(svc *service.MultirecService, takeName string, startStep rune) error {
	if pipeline == "" {
		return nil
	}

	steps := []rune(strings.ToLower(pipeline))

	startIndex := -1
	for i, step := range steps {
		if step == startStep {
			startIndex = i
			break
		}
	}
	if startIndex == -1 {
		return fmt.Errorf("step '%c' not found in pipeline '%s'", startStep, pipeline)
	}

	return runSteps(svc, takeName, steps[startIndex+1:])
}

func runSteps(svc *service.MultirecService, takeName string, steps []rune) error {
	for i, step := range steps {
		fmt.Printf("Pipeline: executing step %d/%d: '%c'...\n", i+1, len(steps), step)

		switch step {
		case 'r':
			if err := recordUntilEnter(svc, takeName); err != nil {
				return fmt.Errorf("pipeline record failed: %w", err)
			}
			fmt.Println("Pipeline: recording completed")

		case 'p':
			if err := svc.Play(takeName); err != nil {
				return fmt.Errorf("pipeline play failed: %w", err)
			}
			fmt.Println("Pipeline: playback completed")

		default:
			return fmt.Errorf("unknown pipeline step: '%c' (valid: %s)", step, pipelineSteps)
		}
	}
	return nil
}

// recordUntilEnter records until Enter is pressed or the process is interrupted
func recordUntilEnter(svc *service.MultirecService, takeName string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		bufio.NewScanner(os.Stdin).Scan()
		cancel()
	}()

	fmt.Println("Pipeline: press Enter to stop...")
	return recordTake(ctx, svc, takeName)
}

func validatePipeline() error {
	if pipeline == "" {
		return nil
	}

	for _, step := range strings.ToLower(pipeline) {
		if step != 'r' && step != 'p' {
			return fmt.Errorf("invalid pipeline step: '%c' (valid: %s)", step, pipelineSteps)
		}
	}
	return nil
}
