package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobdigest/internal/content"
	"jobdigest/internal/model"
)

var generateCmd = &cobra.Command{
	Use:   "generate <job-id>",
	Short: "Generate a cover letter or recruiter message for a stored job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		generate(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().String("kind", "cover-letter", "cover-letter or recruiter-message")
	generateCmd.Flags().String("instructions", "", "extra instructions for the generated text")
}

func generate(cmd *cobra.Command, jobID string) {
	ctx := context.Background()

	appl, err := newApplication(ctx)
	if err != nil {
		log.Fatalf("starting %s: %s", app, err)
	}
	defer appl.Close()

	logger := appl.logger

	var kind string
	switch flagKind, _ := cmd.Flags().GetString("kind"); flagKind {
	case "cover-letter":
		kind = model.ContentCoverLetter
	case "recruiter-message":
		kind = model.ContentRecruiterMessage
	default:
		logger.Fatal("unknown content kind", zap.String("kind", flagKind))
	}

	gen, err := appl.newContentGenerator(ctx)
	if err != nil {
		logger.Fatal("building the generator", zap.Error(err))
	}

	instructions, _ := cmd.Flags().GetString("instructions")

	text, err := content.New(appl.store, gen, logger).Generate(ctx, jobID, kind, instructions)
	if err != nil {
		logger.Fatal("generating content", zap.String("job_id", jobID), zap.Error(err))
	}

	fmt.Println(text)
}
