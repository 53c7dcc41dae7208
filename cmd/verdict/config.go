package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/verdict/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show configuration",
	Long: `Display the resolved verdict configuration.

Without arguments, displays every setting and where API keys come from.
With one argument (key), displays the value for that key.

Configuration is read from ~/.config/verdict/config.yaml.
Project-specific overrides can be placed in .verdict.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if len(args) == 1 {
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(w, value)
			return nil
		}
		displayAllConfig(cmd.Context(), w, cfg, config.DefaultCredentialChain(cfg))
		return nil
	},
}

// configKeys lists the displayable keys in output order.
var configKeys = []string{
	"anthropic.api_key",
	"anthropic.use_bedrock",
	"anthropic.aws_region",
	"anthropic.timeout",
	"gemini.api_key",
	"providers",
	"models.default",
	"pipeline.max_iterations",
	"pipeline.max_tokens",
	"skills.dir",
	"skills.ollama_url",
	"skills.ollama_model",
	"skills.watch",
	"storage.backend",
	"storage.driver",
	"storage.path",
	"secrets.dotenv",
	"log.debug",
}

// displayAllConfig prints all configuration values followed by key sources.
// Keys that resolve but look malformed are flagged next to their source.
func displayAllConfig(ctx context.Context, w io.Writer, c *config.Config, chain *config.CredentialChain) {
	for _, key := range configKeys {
		value, _ := getConfigValue(c, key)
		fmt.Fprintf(w, "%s: %s\n", key, value)
	}
	for agent, model := range c.Models.Agents {
		fmt.Fprintf(w, "models.agents.%s: %s\n", agent, model)
	}

	fmt.Fprintln(w)
	for _, provider := range []string{config.CredentialAnthropic, config.CredentialGemini, config.CredentialBedrock} {
		cred, err := chain.Resolve(ctx, provider)
		if err != nil {
			fmt.Fprintf(w, "credential.%s: (not set)\n", provider)
			continue
		}
		shown := config.MaskAPIKey(cred.APIKey)
		if cred.APIKey == "" {
			shown = cred.Region
		}
		line := fmt.Sprintf("credential.%s: %s (%s)", provider, shown, cred.Source)
		if err := config.ValidateAPIKey(provider, cred.APIKey); err != nil {
			line += " [" + err.Error() + "]"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\nuser config: %s\n", config.GetUserConfigPath())
	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Fprintf(w, "project config: %s\n", p)
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(c *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(c.Anthropic.APIKey), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(c.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return c.Anthropic.AWSRegion, nil
	case "anthropic.timeout":
		return c.Anthropic.Timeout.String(), nil
	case "gemini.api_key":
		return config.MaskAPIKey(c.Gemini.APIKey), nil
	case "providers":
		return strings.Join(c.Providers, ","), nil
	case "models.default":
		return c.Models.Default, nil
	case "pipeline.max_iterations":
		return strconv.Itoa(c.Pipeline.MaxIterations), nil
	case "pipeline.max_tokens":
		return strconv.Itoa(c.Pipeline.MaxTokens), nil
	case "skills.dir":
		return c.Skills.Dir, nil
	case "skills.ollama_url":
		return c.Skills.OllamaURL, nil
	case "skills.ollama_model":
		return c.Skills.OllamaModel, nil
	case "skills.watch":
		return strconv.FormatBool(c.Skills.Watch), nil
	case "storage.backend":
		return c.Storage.Backend, nil
	case "storage.driver":
		return c.Storage.Driver, nil
	case "storage.path":
		return c.Storage.Path, nil
	case "secrets.dotenv":
		return c.Secrets.Dotenv, nil
	case "log.debug":
		return strconv.FormatBool(c.Log.Debug), nil
	}
	if agent, ok := strings.CutPrefix(key, "models.agents."); ok {
		return c.Models.ModelFor(agent), nil
	}
	return "", fmt.Errorf("unknown configuration key: %s", key)
}
