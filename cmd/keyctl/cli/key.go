package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bi-platform/apikeys/internal/apikeys"
	"github.com/bi-platform/apikeys/internal/auth"
	"github.com/bi-platform/apikeys/internal/db/models"
)

// ---------- create ----------

func newCreateCmd(g *globals) *cobra.Command {
	var (
		user      string
		name      string
		workspace string
		expiresIn string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key for a user. The raw key is shown once and cannot be retrieved again.",
		Example: `  keyctl create --user alice --name laptop
  keyctl create --user ci-bot --name deploy --workspace analytics --expires-in 90d`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var expiresOn *time.Time
			if expiresIn != "" {
				d, err := parseExpiresIn(expiresIn)
				if err != nil {
					return err
				}
				t := time.Now().Add(d)
				expiresOn = &t
			}

			svc, closeFn, err := g.openService()
			if err != nil {
				return err
			}
			defer closeFn()

			created, err := svc.CreateKey(cmd.Context(), g.principal(), apikeys.CreateKeyRequest{
				UserID:        user,
				Name:          name,
				WorkspaceName: workspace,
				ExpiresOn:     expiresOn,
			})
			if err != nil {
				return fmt.Errorf("create api key: %w", err)
			}

			out := cmd.OutOrStdout()
			k := created.Key
			fmt.Fprintln(out, "API Key created:")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  ID:        %s\n", k.ID)
			fmt.Fprintf(out, "  Key:       %s\n", created.Plaintext)
			fmt.Fprintf(out, "  User:      %s\n", k.UserID)
			fmt.Fprintf(out, "  Name:      %s\n", k.Name)
			fmt.Fprintf(out, "  Workspace: %s\n", k.WorkspaceName)
			if k.ExpiresOn != nil {
				fmt.Fprintf(out, "  Expires:   %s\n", k.ExpiresOn.UTC().Format(time.RFC3339))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "  Save this key now - it cannot be retrieved again.")
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Owner of the key (required)")
	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "Workspace the key is scoped to (default \"default\")")
	cmd.Flags().StringVar(&expiresIn, "expires-in", "", "Lifetime such as 720h or 90d; omit for a key that never expires")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// parseExpiresIn accepts Go durations plus a whole-day "Nd" form.
func parseExpiresIn(s string) (time.Duration, error) {
	var d time.Duration
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid --expires-in %q", s)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, fmt.Errorf("invalid --expires-in %q", s)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("--expires-in must be positive, got %q", s)
	}
	return d, nil
}

// ---------- list ----------

func newListCmd(g *globals) *cobra.Command {
	var (
		user       string
		activeOnly bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List a user's API keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := g.openService()
			if err != nil {
				return err
			}
			defer closeFn()

			keys, err := svc.ListKeys(cmd.Context(), g.principal(), user, activeOnly)
			if err != nil {
				return fmt.Errorf("list api keys: %w", err)
			}
			return printKeys(cmd.OutOrStdout(), keys, time.Now(), jsonOutput)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Owner whose keys to list (required)")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only keys that can still authenticate")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

type keyRow struct {
	ID        string     `json:"id"`
	Prefix    string     `json:"key_prefix"`
	Name      string     `json:"name"`
	Workspace string     `json:"workspace_name"`
	Status    string     `json:"status"`
	Created   time.Time  `json:"created_on"`
	Expires   *time.Time `json:"expires_on,omitempty"`
	LastUsed  *time.Time `json:"last_used_on,omitempty"`
}

func keyStatus(k *models.APIKey, now time.Time) string {
	switch {
	case k.IsRevoked():
		return "revoked"
	case k.IsExpired(now):
		return "expired"
	default:
		return "active"
	}
}

func printKeys(out io.Writer, keys []*models.APIKey, now time.Time, jsonOutput bool) error {
	rows := make([]keyRow, len(keys))
	for i, k := range keys {
		rows[i] = keyRow{
			ID:        k.ID,
			Prefix:    k.KeyPrefix,
			Name:      k.Name,
			Workspace: k.WorkspaceName,
			Status:    keyStatus(k, now),
			Created:   k.CreatedOn,
			Expires:   k.ExpiresOn,
			LastUsed:  k.LastUsedOn,
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, "No API keys found. Use 'keyctl create' to create one.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPREFIX\tNAME\tWORKSPACE\tSTATUS\tEXPIRES")
	for _, r := range rows {
		expires := "never"
		if r.Expires != nil {
			expires = r.Expires.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Prefix, r.Name, r.Workspace, r.Status, expires)
	}
	return tw.Flush()
}

// ---------- revoke ----------

func newRevokeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key by id",
		Long:  "Permanently revoke an API key. The record is kept so it still shows up in listings.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := g.openService()
			if err != nil {
				return err
			}
			defer closeFn()

			k, err := svc.RevokeKey(cmd.Context(), g.principal(), args[0])
			if err != nil {
				return fmt.Errorf("revoke api key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked API key %s (%s...) owned by %s\n", k.ID, k.KeyPrefix, k.UserID)
			return nil
		},
	}
}

// ---------- verify ----------

func newVerifyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <key>",
		Short: "Check whether a key authenticates",
		Long:  "Run the same check the server performs on a request. A successful check updates the key's last-used time.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := g.openService()
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := svc.Authenticate(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("verify api key: %w", err)
			}
			if !res.OK() {
				return fmt.Errorf("key rejected: %s", res.Outcome)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: key %s authenticates user %s in workspace %s\n", res.KeyID, res.UserID, res.Workspace)
			return nil
		},
	}
}

// ---------- generate ----------

func newGenerateCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a key and its hash without touching the database",
		Long:  "Print a fresh plaintext key with its prefix and bcrypt hash, for seeding fixtures or external provisioning.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			generated, err := auth.NewKeyCodec(cost).Generate()
			if err != nil {
				return fmt.Errorf("generate api key: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:        %s\n", generated.Plaintext)
			fmt.Fprintf(out, "key_prefix: %s\n", generated.Prefix)
			fmt.Fprintf(out, "key_hash:   %s\n", generated.Hash)
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", auth.DefaultBcryptCost, "bcrypt cost factor")
	return cmd
}
