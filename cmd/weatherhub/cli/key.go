package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/weatherhub/weatherhub/internal/service"
	"github.com/weatherhub/weatherhub/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke the quota-metered API keys used against /weather.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		username    string
		quota       int64
		description string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Issue an API key for an existing user. The raw key is shown once and cannot be retrieved again.",
		Example: `  weatherhub key create --user alice --quota 500 --description "dashboard"
  weatherhub key create --user alice   # uses api_key.default_quota`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(cmd.OutOrStdout(), username, quota, !cmd.Flags().Changed("quota"), description)
		},
	}

	cmd.Flags().StringVar(&username, "user", "", "Owner username (required)")
	cmd.Flags().Int64Var(&quota, "quota", 0, "Starting quota (default: api_key.default_quota)")
	cmd.Flags().StringVar(&description, "description", "", "Human-readable description")
	cmd.MarkFlagRequired("user")

	return cmd
}

// runKeyCreate issues a key. useDefault selects api_key.default_quota.
func runKeyCreate(out io.Writer, username string, quota int64, useDefault bool, description string) error {
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
	u, err := st.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("user %q not found", username)
	}
	if err != nil {
		return err
	}

	if useDefault {
		quota = cfg.APIKey.DefaultQuota
	}
	key, raw, err := service.NewKeyService(st, cfg.APIKey.Prefix).Issue(ctx, u.ID, quota, description)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Fprintln(out, "API Key created:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Key:    %s\n", raw)
	fmt.Fprintf(out, "  User:   %s\n", u.Username)
	fmt.Fprintf(out, "  Quota:  %d\n", key.RemainingQuota)
	if description != "" {
		fmt.Fprintf(out, "  Description: %s\n", description)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		jsonOutput bool
		username   string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd.OutOrStdout(), username, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&username, "user", "", "Only list keys owned by this user")

	return cmd
}

func runKeyList(out io.Writer, username string, jsonOutput bool) error {
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

	var userID int64
	if username != "" {
		u, err := st.GetUserByUsername(ctx, username)
		if err != nil {
			return fmt.Errorf("user %q: %w", username, err)
		}
		userID = u.ID
	}

	keys, err := st.ListAPIKeys(ctx, userID, 0, 10000)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		fmt.Fprintln(out, "No API keys yet. Use 'weatherhub key create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-6s %-14s %-8s %-10s %-8s %s\n", "ID", "PREFIX", "USER", "QUOTA", "ACTIVE", "DESCRIPTION")
	fmt.Fprintf(out, "%-6s %-14s %-8s %-10s %-8s %s\n", "--", "------", "----", "-----", "------", "-----------")
	for _, k := range keys {
		active := "yes"
		if !k.IsActive {
			active = "no"
		}
		fmt.Fprintf(out, "%-6d %-14s %-8d %-10d %-8s %s\n", k.ID, k.KeyPrefix, k.UserID, k.RemainingQuota, active, k.Description)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <prefix>",
		Short: "Revoke an API key by its prefix",
		Long:  "Deactivate an API key, rejecting any further requests made with it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(cmd.OutOrStdout(), args[0])
		},
	}

	return cmd
}

func runKeyRevoke(out io.Writer, prefix string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	err = st.RevokeAPIKeyByPrefix(context.Background(), prefix)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no active API key found with prefix %q", prefix)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Revoked API key with prefix %q\n", prefix)
	return nil
}
