package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmerrifield20/marketplace-console/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	consoleURL   string
	cfgFile      string
	operator     string
	outputFormat string
	timeout      time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "modctl",
	Short: "Marketplace moderation console CLI",
	Long: `modctl drives the marketplace moderation console from the terminal.

It lists dealers, listings and reports, applies lifecycle transitions,
runs the bulk presets and inspects the audit log.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(configDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("modctl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if consoleURL == "" {
			consoleURL = viper.GetString("console_url")
		}
		if consoleURL == "" {
			consoleURL = "http://localhost:8080"
		}
		if operator == "" {
			operator = viper.GetString("operator")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.modctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&consoleURL, "console", "", "Console base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&operator, "operator", "", "Operator ID sent when the console runs without tokens")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "o", "table", "Output format: table, json or yaml")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(transitionCmd)
	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".modctl")
}

func newClient() (*client.Client, error) {
	var opts []client.Option
	if token := viper.GetString("token"); token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	if operator != "" {
		opts = append(opts, client.WithOperator(operator))
	}
	return client.New(consoleURL, opts...)
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// ── login ─────────────────────────────────────────────────────────────────────

var (
	loginSecret string
	loginName   string
)

var loginCmd = &cobra.Command{
	Use:   "login <operator-id>",
	Short: "Exchange the admin secret for an operator token and save it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := loginSecret
		if secret == "" {
			secret = os.Getenv("MODCTL_ADMIN_SECRET")
		}
		if secret == "" {
			fmt.Print("Admin secret: ")
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			secret = strings.TrimSpace(line)
		}

		c, err := client.New(consoleURL)
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()

		token, err := c.Login(ctx, secret, args[0], loginName)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		path, err := saveConfig(map[string]string{
			"console_url": consoleURL,
			"operator":    args[0],
			"token":       token,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Logged in as %s\n  Token saved to %s\n", args[0], path)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginSecret, "secret", "", "Admin secret (default $MODCTL_ADMIN_SECRET, or prompt)")
	loginCmd.Flags().StringVar(&loginName, "name", "", "Display name recorded in the token")
}

// saveConfig merges values into the config file and writes it with 0600.
func saveConfig(values map[string]string) (string, error) {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = filepath.Join(configDir(), "config.yaml")
	}
	current := map[string]any{}
	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, &current); err != nil {
			return "", fmt.Errorf("parse %s: %w", path, err)
		}
	}
	for k, v := range values {
		current[k] = v
	}
	out, err := yaml.Marshal(current)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

// ── list / get ────────────────────────────────────────────────────────────────

var listPublic bool

var listCmd = &cobra.Command{
	Use:   "list <dealers|listings|reports>",
	Short: "List every entity of a kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()

		var items []client.Entity
		if listPublic {
			if args[0] != "listings" {
				return fmt.Errorf("--public only applies to listings")
			}
			items, err = c.PublicListings(ctx)
		} else {
			items, err = c.List(ctx, args[0])
		}
		if err != nil {
			return err
		}
		return printEntities(items)
	},
}

func init() {
	listCmd.Flags().BoolVar(&listPublic, "public", false, "Only listings visible on the storefront")
}

var getCmd = &cobra.Command{
	Use:   "get <dealer|listing|report> <id>",
	Short: "Show one entity and the transitions currently allowed on it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()

		ent, err := c.Get(ctx, args[0], args[1])
		if err != nil {
			if client.IsNotFound(err) {
				return fmt.Errorf("%s %s not found", args[0], args[1])
			}
			return err
		}
		allowed, err := c.Allowed(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if outputFormat != "table" {
			return printStructured(map[string]any{"entity": ent, "allowed": allowed})
		}
		printEntityDetail(ent)
		fmt.Printf("\nAllowed: %s\n", strings.Join(allowed, ", "))
		return nil
	},
}

// ── transition ────────────────────────────────────────────────────────────────

var (
	trReason string
	trPlan   string
	trFee    float64
	trForce  bool
)

var transitionCmd = &cobra.Command{
	Use:   "transition <dealer|listing|report> <id> <transition>",
	Short: "Apply a lifecycle transition",
	Long: `transition applies a named lifecycle transition to one entity.

  modctl transition dealer 3f0c... approve
  modctl transition dealer 3f0c... ban --reason "fraudulent paperwork"
  modctl transition dealer 3f0c... changePlan --plan pro --fee 49.99
  modctl transition listing 9a1e... delete --force`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id, name := args[0], args[1], args[2]
		if name == "delete" && !trForce {
			fmt.Printf("Delete %s %s? This cannot be undone. [y/N]: ", kind, id)
			answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if strings.ToLower(strings.TrimSpace(answer)) != "y" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()

		res, err := c.Transition(ctx, kind, id, name, client.TransitionInput{
			Reason:     trReason,
			PlanID:     trPlan,
			MonthlyFee: trFee,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if outputFormat != "table" {
			return printStructured(res)
		}
		if res.Removed {
			fmt.Printf("✓ %s %s removed\n", kind, id)
		} else {
			fmt.Printf("✓ %s %s is now %s\n", kind, id, res.Entity.Status())
		}
		if res.NotificationError != "" {
			fmt.Printf("  ! notification failed: %s\n", res.NotificationError)
		}
		return nil
	},
}

func init() {
	transitionCmd.Flags().StringVar(&trReason, "reason", "", "Reason recorded with the transition")
	transitionCmd.Flags().StringVar(&trPlan, "plan", "", "Plan ID for changePlan")
	transitionCmd.Flags().Float64Var(&trFee, "fee", 0, "Monthly fee for changePlan")
	transitionCmd.Flags().BoolVar(&trForce, "force", false, "Skip the confirmation prompt for delete")
}

// ── bulk ──────────────────────────────────────────────────────────────────────

var bulkReason string

var bulkCmd = &cobra.Command{
	Use:   "bulk <approve-pending|resolve-critical>",
	Short: "Run a bulk moderation preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()

		var res *client.BulkResult
		switch args[0] {
		case "approve-pending":
			res, err = c.ApproveAllPending(ctx, bulkReason)
		case "resolve-critical":
			res, err = c.ResolveAllCritical(ctx, bulkReason)
		default:
			return fmt.Errorf("unknown preset %q (want approve-pending or resolve-critical)", args[0])
		}
		if err != nil {
			return err
		}
		return printBulk(res)
	},
}

func init() {
	bulkCmd.Flags().StringVar(&bulkReason, "reason", "", "Reason recorded with every transition")
}

// ── reports ───────────────────────────────────────────────────────────────────

var reportFilter client.ReportFilter

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Show the filtered report queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()

		items, err := c.Reports(ctx, reportFilter)
		if err != nil {
			return err
		}
		return printEntities(items)
	},
}

func init() {
	reportsCmd.Flags().StringVar(&reportFilter.Type, "type", "", "Report target type (listing, user, dealer, comment)")
	reportsCmd.Flags().StringVarP(&reportFilter.Search, "search", "q", "", "Case-insensitive text search")
	reportsCmd.Flags().StringVar(&reportFilter.Status, "status", "", "Report status")
	reportsCmd.Flags().StringVar(&reportFilter.Severity, "severity", "", "Report severity")
}

// ── rules ─────────────────────────────────────────────────────────────────────

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the lifecycle transition table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()

		rules, err := c.Rules(ctx)
		if err != nil {
			return err
		}
		return printRules(rules)
	},
}

// ── audit ─────────────────────────────────────────────────────────────────────

var auditQuery client.AuditQuery

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()

		ov, err := c.Audit(ctx, auditQuery)
		if err != nil {
			return err
		}
		return printAudit(ov)
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log hash chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := requestContext()
		defer cancel()

		ok, reason, err := c.VerifyAudit(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("audit chain broken: %s", reason)
		}
		fmt.Println("✓ Audit chain intact")
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditQuery.Kind, "kind", "", "Only entries for this kind")
	auditCmd.Flags().StringVar(&auditQuery.EntityID, "entity", "", "Only entries for this entity ID")
	auditCmd.Flags().IntVar(&auditQuery.Limit, "limit", 20, "Maximum entries to show")
	auditCmd.AddCommand(auditVerifyCmd)
}

// ── version ───────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the modctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("modctl %s\n", version)
	},
}
