package scheduler

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"TickerScreen/internal/calendar"
	"TickerScreen/internal/ingest"
	"TickerScreen/internal/notifier"
	"TickerScreen/internal/screen"
)

// Scheduler runs the daily download and screen on a cron schedule.
type Scheduler struct {
	Cron     *cron.Cron
	Pipeline *ingest.Pipeline
	Runner   *screen.Runner
	Calendar *calendar.Calendar
	Notifier *notifier.TelegramNotifier // nil disables notifications
	Ctx      context.Context

	// IngestDays is the download lookback in calendar days.
	IngestDays int
	// ScreenDays limits screened history to the last N calendar days; 0 means all.
	ScreenDays int

	now func() time.Time

	mu         sync.Mutex // one job at a time
	lastIngest *ingest.Report
	lastScreen *screen.Result
	lastRunAt  time.Time
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, p *ingest.Pipeline, r *screen.Runner, cal *calendar.Calendar, tn *notifier.TelegramNotifier) *Scheduler {
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		Pipeline:   p,
		Runner:     r,
		Calendar:   cal,
		Notifier:   tn,
		Ctx:        ctx,
		IngestDays: 14,
		now:        time.Now,
	}
}

// RegisterAll registers the daily download + screen task.
func (s *Scheduler) RegisterAll(dailyCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, s.dailyTask); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// RunDailyNow executes the daily task immediately.
func (s *Scheduler) RunDailyNow() {
	s.dailyTask()
}

func (s *Scheduler) dailyTask() {
	log.Info().Msg("running daily task")
	if _, err := s.Download(s.Ctx); err != nil {
		log.Error().Err(err).Msg("daily download")
		return
	}
	if _, err := s.Screen(s.Ctx); err != nil {
		log.Error().Err(err).Msg("daily screen")
	}
}

// Download ingests the trailing IngestDays of business days and reports the run.
func (s *Scheduler) Download(ctx context.Context) (*ingest.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.now().UTC()
	dates := s.Calendar.Lookback(today, s.IngestDays)
	rep, err := s.Pipeline.Ingest(ctx, dates)
	s.lastIngest = rep
	s.lastRunAt = today
	s.trySend(notifier.FormatIngestReport(rep, err))
	return rep, err
}

// Screen runs the screen over every stored symbol and reports the matches.
func (s *Scheduler) Screen(ctx context.Context) (*screen.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var since time.Time
	if s.ScreenDays > 0 {
		since = s.now().UTC().AddDate(0, 0, -s.ScreenDays)
	}
	res, err := s.Runner.Run(ctx, nil, since)
	if err != nil {
		s.trySend(fmt.Sprintf("❌ screen failed: %s", html.EscapeString(err.Error())))
		return nil, err
	}
	s.lastScreen = res
	s.trySend(notifier.FormatScreenReport(res, s.now()))
	return res, nil
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	switch strings.Fields(command + " ")[0] {
	case "/download":
		// the run report, including any error, is sent by Download itself
		if _, err := s.Download(ctx); err != nil {
			log.Error().Err(err).Msg("download command")
		}
		return ""
	case "/screen":
		if _, err := s.Screen(ctx); err != nil {
			log.Error().Err(err).Msg("screen command")
		}
		return ""
	case "/status":
		return s.status()
	default:
		return "commands:\n• /download\n• /screen\n• /status"
	}
}

func (s *Scheduler) status() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString("ℹ️ <b>Status</b>\n")
	if s.lastIngest == nil {
		b.WriteString("download: never run\n")
	} else {
		b.WriteString(fmt.Sprintf("download: %s, %d rows, %d skipped dates, committed=%v\n",
			s.lastRunAt.Format("2006-01-02"), s.lastIngest.Rows, len(s.lastIngest.Skipped), s.lastIngest.Committed))
	}
	if s.lastScreen == nil {
		b.WriteString("screen: never run\n")
	} else {
		b.WriteString(fmt.Sprintf("screen: %d evaluated, %d matched\n", s.lastScreen.Evaluated, len(s.lastScreen.Matches)))
	}
	for _, e := range s.Cron.Entries() {
		b.WriteString(fmt.Sprintf("next run: %s\n", e.Next.Format("2006-01-02 15:04")))
	}
	return b.String()
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Error().Err(err).Msg("send notification")
	}
}
