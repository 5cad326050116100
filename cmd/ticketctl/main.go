package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/superpool/dispute-service/internal/app"
	"github.com/superpool/dispute-service/internal/auth"
	"github.com/superpool/dispute-service/internal/config"
	"github.com/superpool/dispute-service/internal/domain"
	"github.com/superpool/dispute-service/internal/observability"
	"github.com/superpool/dispute-service/internal/persistence"
	"github.com/superpool/dispute-service/internal/service"
	"github.com/superpool/dispute-service/internal/worker"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ticketctl",
		Short:         "Operate the dispute ticket service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cobra.OnInitialize(initConfig)

	root.PersistentFlags().Bool("json", false, "output JSON")
	root.PersistentFlags().String("dsn", "", "postgres DSN (overrides POSTGRES_DSN)")
	root.PersistentFlags().String("log-level", "warn", "log level")
	_ = viper.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("dsn", root.PersistentFlags().Lookup("dsn"))
	_ = viper.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(migrateCmd())
	root.AddCommand(scanCmd())
	root.AddCommand(ticketsCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(keysCmd())
	return root
}

func initConfig() {
	viper.SetEnvPrefix("TICKETCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("jwt-secret", "AUTH_JWT_SECRET")
	_ = viper.BindEnv("token-ttl", "AUTH_ACCESS_TOKEN_TTL_MINUTES")
	viper.SetDefault("token-ttl", 60)
}

func newLogger() (*zap.Logger, error) {
	return observability.NewLogger(config.LoggerConfig{Level: viper.GetString("log-level")})
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dsn := viper.GetString("dsn"); dsn != "" {
		cfg.Postgres.DSN = dsn
	}
	return cfg, nil
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("a postgres DSN is required; set POSTGRES_DSN or --dsn")
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func migrateCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				names, err := persistence.MigrationNames()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			dsn := viper.GetString("dsn")
			if dsn == "" {
				dsn = os.Getenv("POSTGRES_DSN")
			}
			if dsn == "" {
				return errors.New("a postgres DSN is required; set POSTGRES_DSN or --dsn")
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			pg, err := persistence.NewPostgres(cmd.Context(), config.PostgresConfig{DSN: dsn, MaxConns: 2, MinConns: 1}, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list embedded migrations without applying them")
	return cmd
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one escalation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if rt.Escalation == nil {
					return errors.New("escalation is disabled; set ESCALATION_ENABLED=true")
				}
				w := worker.NewEscalationWorker(rt.Escalation, worker.EscalationWorkerConfig{
					LockTTL: rt.Config.Escalation.LockTTL,
					Locker:  rt.Locker,
					Metrics: rt.Metrics,
					Logger:  rt.Logger,
				})
				result, ran, err := w.RunOnce(ctx)
				if !ran && err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "another scan is in progress")
					return nil
				}
				if printErr := printScan(cmd.OutOrStdout(), result); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
}

func printScan(out io.Writer, result service.ScanResult) error {
	if viper.GetBool("json") {
		return printJSON(out, result)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Key", "ID", "Priority", "Merchant", "Idle Since"})
	for _, t := range result.Escalated {
		tw.AppendRow(table.Row{t.ExternalKey, t.ID, t.Priority, t.MerchantID, previousTransition(t).Format(time.RFC3339)})
	}
	tw.AppendFooter(table.Row{"", "", "", "checked / skipped", fmt.Sprintf("%d / %d", result.Checked, result.Skipped)})
	tw.Render()
	return nil
}

// previousTransition reports when the ticket last changed status before
// the scan escalated it.
func previousTransition(t domain.Ticket) time.Time {
	for i := len(t.History) - 2; i >= 0; i-- {
		if t.History[i].Action != domain.HistoryActionUpdated {
			return t.History[i].Timestamp
		}
	}
	return t.CreatedAt
}

func ticketsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tickets", Short: "Inspect tickets"}
	cmd.AddCommand(ticketsListCmd())
	return cmd
}

func ticketsListCmd() *cobra.Command {
	var (
		statuses, priorities []string
		merchantID, assignee string
		limit, offset        int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := service.TicketListFilter{Limit: limit, Offset: offset}
			for _, s := range statuses {
				status := domain.TicketStatus(strings.ToUpper(s))
				if !status.Valid() {
					return fmt.Errorf("unknown status %q", s)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			for _, p := range priorities {
				priority := domain.TicketPriority(strings.ToUpper(p))
				if !priority.Valid() {
					return fmt.Errorf("unknown priority %q", p)
				}
				filter.Priorities = append(filter.Priorities, priority)
			}
			if merchantID != "" {
				filter.MerchantID = &merchantID
			}
			if assignee != "" {
				filter.AssigneeID = &assignee
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				tickets, err := rt.Tickets.ListTickets(ctx, domain.SystemPrincipal, filter)
				if err != nil {
					return err
				}
				return printTickets(cmd.OutOrStdout(), tickets)
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "status filter (repeatable)")
	cmd.Flags().StringSliceVar(&priorities, "priority", nil, "priority filter (repeatable)")
	cmd.Flags().StringVar(&merchantID, "merchant", "", "merchant id")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee agent id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func printTickets(out io.Writer, tickets []domain.Ticket) error {
	if viper.GetBool("json") {
		return printJSON(out, tickets)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Key", "ID", "Status", "Priority", "Category", "Merchant", "Assignee", "Last Transition"})
	for _, t := range tickets {
		assignee := ""
		if t.AssigneeID != nil {
			assignee = *t.AssigneeID
		}
		tw.AppendRow(table.Row{t.ExternalKey, t.ID, t.Status, t.Priority, t.Category, t.MerchantID, assignee, t.LastTransitionAt.Format(time.RFC3339)})
	}
	tw.Render()
	return nil
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Staff access tokens"}
	cmd.AddCommand(tokenIssueCmd())
	return cmd
}

func tokenIssueCmd() *cobra.Command {
	var staffID, role string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint a staff access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, expires, err := issueToken(viper.GetString("jwt-secret"), viper.GetInt("token-ttl"), staffID, role)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), map[string]any{"token": token, "expires_at": expires})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&staffID, "staff-id", "", "staff member id")
	cmd.Flags().StringVar(&role, "role", string(domain.StaffRoleSupport), "AGENT, SUPPORT or ADMIN")
	return cmd
}

func issueToken(secret string, ttlMinutes int, staffID, role string) (string, time.Time, error) {
	if strings.TrimSpace(staffID) == "" {
		return "", time.Time{}, errors.New("--staff-id required")
	}
	if secret == "" {
		return "", time.Time{}, errors.New("AUTH_JWT_SECRET is required")
	}
	staffRole := domain.StaffRole(strings.ToUpper(role))
	if !staffRole.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown role %q", role)
	}
	return auth.NewTokenManager(secret, ttlMinutes).GenerateToken(staffID, staffRole)
}

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "Merchant API keys"}
	cmd.AddCommand(keysHashCmd())
	return cmd
}

func keysHashCmd() *cobra.Command {
	var merchantID string
	var cost int
	cmd := &cobra.Command{
		Use:   "hash <api-key>",
		Short: "Hash a merchant API key for AUTH_MERCHANT_KEYS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashAPIKey(args[0], cost)
			if err != nil {
				return err
			}
			if merchantID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", merchantID, hash)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&merchantID, "merchant-id", "", "prefix output with merchant id")
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
