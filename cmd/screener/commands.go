package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"TickerScreen/internal/calculator"
	"TickerScreen/internal/calendar"
	"TickerScreen/internal/collector"
	"TickerScreen/internal/config"
	"TickerScreen/internal/history"
	"TickerScreen/internal/ingest"
	"TickerScreen/internal/notifier"
	"TickerScreen/internal/scheduler"
	"TickerScreen/internal/screen"
	"TickerScreen/internal/store"
	"TickerScreen/internal/strategy"
)

func newCreateDatabaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-database [db_file] [table_name]",
		Short: "Create the bar table, or verify an existing one",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Database.SQLitePath = args[0]
			}
			if len(args) > 1 {
				cfg.Database.Table = args[1]
			}
			s, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			log.Info().Str("path", cfg.Database.SQLitePath).Str("table", cfg.Database.Table).Msg("database ready")
			return nil
		},
	}
}

func newDownloadCmd() *cobra.Command {
	var days, workers int
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download grouped daily bars for the trailing business days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateProvider(); err != nil {
				return err
			}
			if cmd.Flags().Changed("days") {
				cfg.Ingest.LookbackDays = days
			}
			if cmd.Flags().Changed("workers") {
				cfg.Provider.Workers = workers
			}

			cal, err := calendar.New(cfg.Calendar.Holidays)
			if err != nil {
				return err
			}
			s, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			p := ingest.NewPipeline(newFetcher(cfg), s, cfg.Provider.Market, cfg.Provider.Locale, cfg.Provider.Workers)
			dates := cal.Lookback(time.Now().UTC(), cfg.Ingest.LookbackDays)
			rep, err := p.Ingest(cmd.Context(), dates)
			if rep != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%d dates requested, %d fetched, %d skipped, %d rows, committed=%v\n",
					rep.Requested, len(rep.Fetched), len(rep.Skipped), rep.Rows, rep.Committed)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&days, "days", 14, "Calendar days to look back")
	cmd.Flags().IntVar(&workers, "workers", 1, "Concurrent provider requests")
	return cmd
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <symbol>",
		Short: "Show the stored history and consolidation verdicts for one symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			bars, err := history.NewLoader(s).Load(cmd.Context(), args[0], time.Time{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(bars) == 0 {
				fmt.Fprintf(out, "%s: no stored bars\n", args[0])
				return nil
			}
			latest := bars[len(bars)-1]
			fmt.Fprintf(out, "%s: %d bars, latest %s close %.2f volume %.0f\n",
				latest.Symbol, len(bars), latest.Time().Format(time.DateOnly), latest.Close, latest.Volume)

			tp := paramsFor(cfg, string(strategy.PolicyTrailing))
			v, err := strategy.Trailing(bars, tp)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "trailing %s\n", describeVerdict(v))

			rp := paramsFor(cfg, string(strategy.PolicyRolling))
			for w := range strategy.Rolling(bars, rp) {
				if w.Consolidating {
					fmt.Fprintf(out, "rolling %s\n", describeVerdict(w))
				}
			}
			return nil
		},
	}
}

func newScreenCmd() *cobra.Command {
	var policy string
	var sinceDays int
	cmd := &cobra.Command{
		Use:   "screen [symbols...]",
		Short: "List symbols whose recent closes are consolidating",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("policy") {
				policy = cfg.Screen.Policy
			}
			if _, err := strategy.ParsePolicy(policy); err != nil {
				return err
			}
			if !cmd.Flags().Changed("since-days") {
				sinceDays = cfg.Screen.LookbackDays
			}

			s, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			var since time.Time
			if sinceDays > 0 {
				since = time.Now().UTC().AddDate(0, 0, -sinceDays)
			}
			res, err := screen.NewRunner(s, paramsFor(cfg, policy), cfg.Screen.Workers).Run(cmd.Context(), args, since)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SYMBOL\tDATE\tCLOSE\tVOLUME")
			for _, m := range res.Matches {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.0f\n", m.Symbol, m.Latest.Time().Format(time.DateOnly), m.Latest.Close, m.Latest.Volume)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "", "Consolidation policy (trailing|rolling)")
	cmd.Flags().IntVar(&sinceDays, "since-days", 0, "Only use bars from the last N calendar days (0 = all)")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daily download and screen on a schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateProvider(); err != nil {
				return err
			}
			cal, err := calendar.New(cfg.Calendar.Holidays)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			var tn *notifier.TelegramNotifier
			if cfg.TelegramEnabled() {
				tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
			} else {
				log.Warn().Msg("telegram not configured, reports are logged only")
			}

			p := ingest.NewPipeline(newFetcher(cfg), s, cfg.Provider.Market, cfg.Provider.Locale, cfg.Provider.Workers)
			r := screen.NewRunner(s, paramsFor(cfg, cfg.Screen.Policy), cfg.Screen.Workers)

			sched := scheduler.NewScheduler(ctx, p, r, cal, tn)
			sched.IngestDays = cfg.Ingest.LookbackDays
			sched.ScreenDays = cfg.Screen.LookbackDays
			if err := sched.RegisterAll(cfg.Schedule.DailyCron); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			if tn != nil {
				go tn.StartPolling(ctx, sched.HandleCommand)
				log.Info().Msg("telegram polling started")
			}

			if os.Getenv("RUN_ON_START") == "true" {
				log.Info().Msg("RUN_ON_START enabled, executing daily task now")
				go sched.RunDailyNow()
			}

			log.Info().Str("cron", cfg.Schedule.DailyCron).Msg("screener is running, press Ctrl+C to stop")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-sigCh:
				log.Info().Msg("shutdown signal received, stopping")
			case <-ctx.Done():
			}
			cancel()
			return nil
		},
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Database.SQLitePath, cfg.Database.Table)
	if err != nil {
		return nil, err
	}
	if err := s.CreateSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newFetcher(cfg *config.Config) collector.Fetcher {
	f := collector.NewPolygonFetcher(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Proxy,
		cfg.Provider.Timeout, cfg.Provider.RequestsPerMinute)
	log.Info().Str("source", f.Name()).Int("rpm", cfg.Provider.RequestsPerMinute).Msg("data source ready")
	return f
}

// describeVerdict renders one window verdict on a single line.
func describeVerdict(v strategy.Verdict) string {
	return fmt.Sprintf("%d ending %s: consolidating=%v high %.2f low %.2f range %.2f%% volume %.0f",
		v.Bars, v.Latest.Time().Format(time.DateOnly), v.Consolidating,
		v.High, v.Low, calculator.RangePct(v.High, v.Low), v.Volume)
}

// paramsFor returns the configured screen parameters when policy is the
// configured one. Any other policy gets its own window and volume defaults
// with the configured pct.
func paramsFor(cfg *config.Config, policy string) strategy.Params {
	if policy != cfg.Screen.Policy {
		p := strategy.TrailingDefaults()
		if policy == string(strategy.PolicyRolling) {
			p = strategy.RollingDefaults()
		}
		p.Pct = cfg.Screen.Pct
		return p
	}
	return strategy.Params{
		Policy:    strategy.Policy(policy),
		Window:    cfg.Screen.Window,
		Pct:       cfg.Screen.Pct,
		MinVolume: cfg.Screen.MinVolume,
	}
}
