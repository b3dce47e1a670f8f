package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
	"github.com/hackgods/clinic-appointment-client/internal/logger"
	"github.com/hackgods/clinic-appointment-client/internal/reconcile"
	"github.com/hackgods/clinic-appointment-client/internal/remote"
)

// SimConfig drives one cache against a live clinic API with concurrent
// workers, then checks that the cache converged on the backend's data.
type SimConfig struct {
	APIBaseURL   string        `env:"CLINIC_API_BASE_URL" envDefault:"http://localhost:5000/api"`
	Email        string        `env:"SIM_EMAIL,required"`
	Password     string        `env:"SIM_PASSWORD,required"`
	Duration     time.Duration `env:"SIM_DURATION" envDefault:"30s"`
	Workers      int           `env:"SIM_WORKERS" envDefault:"10"`
	StatusRatio  float64       `env:"SIM_STATUS_RATIO" envDefault:"0.4"`
	TabRatio     float64       `env:"SIM_TAB_RATIO" envDefault:"0.3"`
	DateRatio    float64       `env:"SIM_DATE_RATIO" envDefault:"0.2"`
	RefreshRatio float64       `env:"SIM_REFRESH_RATIO" envDefault:"0.1"`
	DaysAround   int           `env:"SIM_DAYS_AROUND" envDefault:"7"`
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, err error) {
	atomic.AddInt64(&om.Total, 1)
	if err == nil {
		atomic.AddInt64(&om.Success, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	SetStatus  OperationMetrics
	SelectTab  OperationMetrics
	SelectDate OperationMetrics
	Refresh    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	log     *logrus.Entry
	remote  *remote.Client
	cache   *reconcile.Cache
	metrics Metrics
}

var statuses = []appointment.Status{
	appointment.StatusScheduled,
	appointment.StatusConfirmed,
	appointment.StatusCompleted,
	appointment.StatusCancelled,
}

var tabs = []appointment.Tab{appointment.TabAll, appointment.TabToday, appointment.TabUpcoming, appointment.TabPast}

func main() {
	log := logger.Component(logger.New("info", "text"), "simulate")

	_ = godotenv.Load()
	var cfg SimConfig
	if err := env.Parse(&cfg); err != nil {
		log.WithError(err).Fatal("parse env")
	}
	if cfg.Workers <= 0 || cfg.Duration <= 0 {
		log.Fatal("SIM_WORKERS and SIM_DURATION must be > 0")
	}
	normalize(&cfg)

	log.WithFields(logrus.Fields{
		"duration": cfg.Duration,
		"workers":  cfg.Workers,
		"status":   cfg.StatusRatio,
		"tab":      cfg.TabRatio,
		"date":     cfg.DateRatio,
	}).Info("simulator starting")

	client := remote.New(cfg.APIBaseURL, 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := client.SignIn(ctx, appointment.Credentials{Email: cfg.Email, Password: cfg.Password}); err != nil {
		log.WithError(err).Fatal("sign in")
	}

	cache := reconcile.New(client, reconcile.WithLogger(logger.Component(log.Logger, "reconcile")))
	defer cache.Destroy()
	if err := cache.Load().Wait(ctx); err != nil {
		log.WithError(err).Fatal("initial load")
	}
	log.WithField("appointments", len(cache.Snapshot().Appointments)).Info("cache loaded")

	sim := &Simulator{config: cfg, log: log, remote: client, cache: cache}
	sim.Run()

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelVerify()
	if err := sim.Verify(verifyCtx); err != nil {
		log.WithError(err).Error("cache did not converge")
	}
	sim.PrintReport()
}

func normalize(cfg *SimConfig) {
	total := cfg.StatusRatio + cfg.TabRatio + cfg.DateRatio + cfg.RefreshRatio
	if total <= 0 {
		return
	}
	cfg.StatusRatio /= total
	cfg.TabRatio /= total
	cfg.DateRatio /= total
	cfg.RefreshRatio /= total
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Infof("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.StatusRatio:
			s.doSetStatus(ctx, rng)
		case r < s.config.StatusRatio+s.config.TabRatio:
			s.measure(ctx, &s.metrics.SelectTab, s.cache.SelectTab(tabs[rng.Intn(len(tabs))]))
		case r < s.config.StatusRatio+s.config.TabRatio+s.config.DateRatio:
			s.doSelectDate(ctx, rng)
		default:
			s.measure(ctx, &s.metrics.Refresh, s.cache.Refresh())
		}
	}
}

func (s *Simulator) doSetStatus(ctx context.Context, rng *rand.Rand) {
	shown := s.cache.Snapshot().Appointments
	if len(shown) == 0 {
		return
	}
	target := shown[rng.Intn(len(shown))]
	s.measure(ctx, &s.metrics.SetStatus, s.cache.SetStatus(target.ID, statuses[rng.Intn(len(statuses))]))
}

func (s *Simulator) doSelectDate(ctx context.Context, rng *rand.Rand) {
	if rng.Intn(4) == 0 {
		s.measure(ctx, &s.metrics.SelectDate, s.cache.ClearDate())
		return
	}
	offset := rng.Intn(2*s.config.DaysAround+1) - s.config.DaysAround
	date := time.Now().UTC().AddDate(0, 0, offset).Format(appointment.DateLayout)
	s.measure(ctx, &s.metrics.SelectDate, s.cache.SelectDate(date))
}

func (s *Simulator) measure(ctx context.Context, om *OperationMetrics, task *reconcile.Task) {
	start := time.Now()
	err := task.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return
	}
	om.Record(time.Since(start), err)
}

// Verify switches to the unfiltered view, waits for it to settle and compares
// every shown status with what the backend reports.
func (s *Simulator) Verify(ctx context.Context) error {
	if err := s.waitSettled(ctx); err != nil {
		return err
	}
	if err := s.cache.ClearDate().Wait(ctx); err != nil {
		return fmt.Errorf("clear date: %w", err)
	}
	if err := s.cache.SelectTab(appointment.TabAll).Wait(ctx); err != nil {
		return fmt.Errorf("select all: %w", err)
	}

	want, err := s.remote.ListAppointments(ctx, appointment.Filter{})
	if err != nil {
		return fmt.Errorf("list from backend: %w", err)
	}
	backend := make(map[int64]appointment.Status, len(want))
	for _, a := range want {
		backend[a.ID] = a.Status
	}

	snap := s.cache.Snapshot()
	var problems []string
	for _, e := range snap.Appointments {
		if e.Sync == reconcile.SyncPending {
			problems = append(problems, fmt.Sprintf("%d still pending", e.ID))
			continue
		}
		if got, ok := backend[e.ID]; !ok {
			problems = append(problems, fmt.Sprintf("%d not on backend", e.ID))
		} else if got != e.Status && e.Sync != reconcile.SyncFailed {
			problems = append(problems, fmt.Sprintf("%d shows %s, backend has %s", e.ID, e.Status, got))
		}
	}
	if len(snap.Appointments) != len(want) {
		problems = append(problems, fmt.Sprintf("cache shows %d appointments, backend has %d", len(snap.Appointments), len(want)))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	s.log.WithField("appointments", len(want)).Info("cache converged with backend")
	return nil
}

// waitSettled polls until no shown entry has an unanswered status change.
func (s *Simulator) waitSettled(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		pending := 0
		for _, e := range s.cache.Snapshot().Appointments {
			if e.Sync == reconcile.SyncPending {
				pending++
			}
		}
		if pending == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%d status changes still pending: %w", pending, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Set status", &s.metrics.SetStatus)
	printOperationReport("Select tab", &s.metrics.SelectTab)
	printOperationReport("Select date", &s.metrics.SelectDate)
	printOperationReport("Refresh", &s.metrics.Refresh)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	failed := atomic.LoadInt64(&om.Error)
	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}
