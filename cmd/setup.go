package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobdigest/internal/model"
	"jobdigest/internal/source"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive first-run setup: resume, search preferences and API keys",
	Run: func(cmd *cobra.Command, _ []string) {
		setup(cmd)
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)

	setupCmd.Flags().Bool("verify", false, "skip the wizard and test the configured API credentials")
}

func setup(cmd *cobra.Command) {
	ctx := context.Background()

	appl, err := newApplication(ctx)
	if err != nil {
		log.Fatalf("starting %s: %s", app, err)
	}
	defer appl.Close()

	if verify, _ := cmd.Flags().GetBool("verify"); verify {
		verifyConnections(ctx, appl)
		return
	}

	if err := runWizard(ctx, appl); err != nil {
		appl.logger.Fatal("setup aborted", zap.Error(err))
	}
	fmt.Printf("Setup complete. Start the daemon with `%s run` or fetch now with `%s fetch`.\n", app, app)
}

func runWizard(ctx context.Context, appl *application) error {
	settings, err := appl.store.GetSettings(ctx)
	if err != nil {
		return err
	}
	keys, err := appl.store.GetAPIKeys(ctx)
	if err != nil {
		return err
	}

	if err := askResume(ctx, appl); err != nil {
		return err
	}
	if err := askSearchPreferences(&settings); err != nil {
		return err
	}
	if err := askSchedule(&settings); err != nil {
		return err
	}
	if err := askAPIKeys(&keys); err != nil {
		return err
	}

	if err := appl.store.SetSettings(ctx, settings); err != nil {
		return err
	}
	if err := appl.store.SetAPIKeys(ctx, keys); err != nil {
		return err
	}

	now := time.Now().UTC()
	return appl.store.SetOnboarding(ctx, model.Onboarding{Completed: true, CompletedAt: &now})
}

func askResume(ctx context.Context, appl *application) error {
	existing, err := appl.store.GetResume(ctx)
	if err != nil {
		return err
	}

	label := "Path to your resume (plain text file)"
	if existing != nil {
		label += " [enter to keep current]"
	}

	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" && existing != nil {
				return nil
			}
			info, err := os.Stat(strings.TrimSpace(input))
			if err != nil {
				return fmt.Errorf("cannot read file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", input)
			}
			return nil
		},
	}

	path, err := prompt.Run()
	if err != nil {
		return err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fmt.Errorf("resume file %s is empty", path)
	}

	return appl.store.SetResume(ctx, &model.Resume{
		Text:       text,
		FileName:   path,
		UploadedAt: time.Now().UTC(),
	})
}

func askSearchPreferences(settings *model.Settings) error {
	keywords, err := askString("Search keywords (comma separated)", strings.Join(settings.SearchKeywords, ", "), true)
	if err != nil {
		return err
	}
	settings.SearchKeywords = splitKeywords(keywords)

	if settings.Location, err = askString("Location (blank for anywhere)", settings.Location, false); err != nil {
		return err
	}

	current := ""
	if settings.SalaryMin != nil {
		current = strconv.Itoa(*settings.SalaryMin)
	}
	salary, err := askString("Minimum salary (blank for none)", current, false)
	if err != nil {
		return err
	}
	settings.SalaryMin = nil
	if salary != "" {
		value, err := strconv.Atoi(salary)
		if err != nil || value < 0 {
			return fmt.Errorf("invalid minimum salary: %s", salary)
		}
		settings.SalaryMin = &value
	}

	remote := promptui.Select{
		Label: "Remote jobs only?",
		Items: []string{PromptNo, PromptYes},
	}
	_, answer, err := remote.Run()
	if err != nil {
		return err
	}
	settings.RemoteOnly = answer == PromptYes

	posted := promptui.Select{
		Label: "How recent should listings be?",
		Items: []string{"all", "today", "3days", "week", "month"},
	}
	if _, settings.DatePosted, err = posted.Run(); err != nil {
		return err
	}
	return nil
}

func askSchedule(settings *model.Settings) error {
	hour, err := askInt("Daily fetch hour (0-23)", settings.FetchHour, 0, 23)
	if err != nil {
		return err
	}
	minute, err := askInt("Daily fetch minute (0-59)", settings.FetchMinute, 0, 59)
	if err != nil {
		return err
	}
	settings.FetchHour = hour
	settings.FetchMinute = minute
	return nil
}

func askAPIKeys(keys *model.APIKeys) error {
	var err error
	if keys.Gemini, err = askSecret("Gemini API key", keys.Gemini); err != nil {
		return err
	}
	if keys.Adzuna.AppID, err = askSecret("Adzuna app id", keys.Adzuna.AppID); err != nil {
		return err
	}
	if keys.Adzuna.AppKey, err = askSecret("Adzuna app key", keys.Adzuna.AppKey); err != nil {
		return err
	}
	if keys.JSearch, err = askSecret("JSearch (RapidAPI) key", keys.JSearch); err != nil {
		return err
	}
	return nil
}

func askString(label, current string, required bool) (string, error) {
	prompt := promptui.Prompt{
		Label:   label,
		Default: current,
		Validate: func(input string) error {
			if required && strings.TrimSpace(input) == "" {
				return fmt.Errorf("a value is required")
			}
			return nil
		},
	}
	value, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func askInt(label string, current, min, max int) (int, error) {
	prompt := promptui.Prompt{
		Label:   label,
		Default: strconv.Itoa(current),
		Validate: func(input string) error {
			value, err := strconv.Atoi(strings.TrimSpace(input))
			if err != nil || value < min || value > max {
				return fmt.Errorf("enter a number between %d and %d", min, max)
			}
			return nil
		},
	}
	value, err := prompt.Run()
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(value))
}

// askSecret keeps the existing value when the user just presses enter.
func askSecret(label, current string) (string, error) {
	if current != "" {
		label += " [enter to keep current]"
	}
	prompt := promptui.Prompt{
		Label: label,
		Mask:  '*',
	}
	value, err := prompt.Run()
	if err != nil {
		return "", err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return current, nil
	}
	return value, nil
}

func splitKeywords(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// verifyConnections probes each configured upstream with a minimal request.
func verifyConnections(ctx context.Context, appl *application) {
	logger := appl.logger

	probes := []struct {
		name  string
		probe func(context.Context) error
	}{
		{"adzuna", source.NewAdzuna(appl.store, logger).TestConnection},
		{"jsearch", source.NewJSearch(appl.store, logger).TestConnection},
		{"gemini", func(ctx context.Context) error {
			gen, err := appl.newContentGenerator(ctx)
			if err != nil {
				return err
			}
			_, err = gen.GenerateContent(ctx, "Reply with the single word OK.")
			return err
		}},
	}

	failures := 0
	for _, p := range probes {
		if err := p.probe(ctx); err != nil {
			failures++
			fmt.Printf("%-8s FAILED: %s\n", p.name, err)
			continue
		}
		fmt.Printf("%-8s OK\n", p.name)
	}
	if failures > 0 {
		logger.Fatal("credential verification failed", zap.Int("failures", failures))
	}
}
