package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weatherhub/weatherhub/internal/config"
	"github.com/weatherhub/weatherhub/internal/model"
	"github.com/weatherhub/weatherhub/internal/store"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage WeatherHub configuration",
		Long: `Initialize a default configuration file, display the effective configuration,
or read and write the runtime settings stored in the database.`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default weatherhub.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVar(&path, "path", "weatherhub.yaml", "Where to write the file")

	return cmd
}

func runConfigInit(out io.Writer, path string, force bool) error {
	if force {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove existing config: %w", err)
		}
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(out, "Created %s\n", path)
	fmt.Fprintf(out, "Set auth.jwt_secret (or %s_AUTH_JWT_SECRET), then run 'weatherhub serve'.\n", config.EnvPrefix)
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}
}

func runConfigShow(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if f := viper.ConfigFileUsed(); f != "" {
		fmt.Fprintf(out, "# Config file: %s\n", f)
	} else {
		fmt.Fprintln(out, "# Config file: (none found, using defaults)")
	}

	doc, err := cfg.Redacted()
	if err != nil {
		return err
	}
	_, err = out.Write(doc)
	return err
}

// ---------- config set / get ----------

func newConfigSetCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Create or update a runtime setting",
		Example: `  weatherhub config set crawler_interval 1800`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd.OutOrStdout(), args[0], args[1], description, cmd.Flags().Changed("description"))
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Setting description")

	return cmd
}

func runConfigSet(out io.Writer, key, value, description string, setDescription bool) error {
	if key == "" || len(key) > model.MaxSettingKeyLen {
		return fmt.Errorf("setting key must be 1-%d characters", model.MaxSettingKeyLen)
	}
	if len(description) > model.MaxSettingDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", model.MaxSettingDescriptionLen)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	existing, err := st.GetSetting(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := st.CreateSetting(ctx, &model.Setting{Key: key, Value: value, Description: description}); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created %s = %s\n", key, value)
		return nil
	case err != nil:
		return err
	}

	existing.Value = value
	if setDescription {
		existing.Description = description
	}
	if err := st.UpdateSetting(ctx, existing); err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated %s = %s\n", key, value)
	return nil
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a runtime setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(cmd.OutOrStdout(), args[0])
		},
	}
}

func runConfigGet(out io.Writer, key string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	s, err := st.GetSetting(context.Background(), key)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("setting %q not found", key)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, s.Value)
	return nil
}
