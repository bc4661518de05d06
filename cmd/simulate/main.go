package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-availability-scheduling/internal/appointment"
	"github.com/hackgods/doctor-availability-scheduling/internal/config"
	"github.com/hackgods/doctor-availability-scheduling/internal/db"
	"github.com/hackgods/doctor-availability-scheduling/internal/logger"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	CancelRatio  float64
	ReadRatio    float64
	Patients     int
	DoctorLimit  int
	DaysAhead    int
	SlotMinutes  int
	PostgresDSN  string
}

var visitReasons = []string{
	"annual check-up",
	"follow-up visit",
	"persistent headache",
	"blood test results",
	"prescription renewal",
	"skin rash",
	"back pain",
}

type bookedAppointment struct {
	ID        uuid.UUID
	PatientID string
	DoctorID  string
}

type DataPool struct {
	Doctors      []string
	Patients     []string
	Dates        []string
	mu           sync.RWMutex
	appointments []bookedAppointment
}

func (dp *DataPool) AddAppointment(a bookedAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (bookedAppointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedAppointment{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
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

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	if len(latencies) > 0 {
		p50Idx := len(latencies) * 50 / 100
		if p50Idx >= len(latencies) {
			p50Idx = len(latencies) - 1
		}
		p50 = latencies[p50Idx]

		p95Idx := len(latencies) * 95 / 100
		if p95Idx >= len(latencies) {
			p95Idx = len(latencies) - 1
		}
		p95 = latencies[p95Idx]
	}

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking      OperationMetrics
	Confirm      OperationMetrics
	Cancel       OperationMetrics
	Availability OperationMetrics
	List         OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     *zap.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(baseCfg.LogLevel, baseCfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	log.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("confirm", cfg.ConfirmRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal("load data pool", zap.Error(err))
	}

	log.Info("data pool loaded",
		zap.Int("doctors", len(dataPool.Doctors)),
		zap.Int("patients", len(dataPool.Patients)),
		zap.Strings("dates", dataPool.Dates),
	)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	sim.Run()
	sim.PrintReport()

	auditCtx, cancelAudit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelAudit()

	overlaps, err := auditOverlaps(auditCtx, pgPool, dataPool.Dates)
	if err != nil {
		log.Fatal("overlap audit failed", zap.Error(err))
	}
	if overlaps > 0 {
		log.Error("double bookings detected", zap.Int("overlapping_pairs", overlaps))
		os.Exit(2)
	}
	log.Info("overlap audit passed, no slot-holding appointments overlap")
}

func loadConfig(baseCfg config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   config.String("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     config.Duration("SIM_DURATION", 30*time.Second),
		Workers:      config.Int("SIM_WORKERS", 10),
		BookingRatio: config.Float("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: config.Float("SIM_CONFIRM_RATIO", 0.15),
		CancelRatio:  config.Float("SIM_CANCEL_RATIO", 0.05),
		ReadRatio:    config.Float("SIM_READ_RATIO", 0.3),
		Patients:     config.Int("SIM_PATIENTS", 500),
		DoctorLimit:  config.Int("SIM_DOCTOR_LIMIT", 20),
		DaysAhead:    config.Int("SIM_DAYS_AHEAD", 5),
		SlotMinutes:  config.Int("SIM_SLOT_MINUTES", 30),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.SlotMinutes <= 0 || cfg.SlotMinutes > 240 {
		return fmt.Errorf("SIM_SLOT_MINUTES must be between 1 and 240")
	}
	return nil
}

// loadDataPool takes the doctors with published templates from Postgres and
// invents the patients; patients only exist as caller ids.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT DISTINCT doctor_id FROM availability_templates
		WHERE is_available
		ORDER BY doctor_id
		LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors with availability, run cmd/seed first")
	}

	faker := gofakeit.New(0)
	for i := 0; i < cfg.Patients; i++ {
		dataPool.Patients = append(dataPool.Patients, "pat-"+faker.UUID())
	}

	today := time.Now().UTC()
	for d := 1; d <= cfg.DaysAhead; d++ {
		dataPool.Dates = append(dataPool.Dates, today.AddDate(0, 0, d).Format(appointment.DateLayout))
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

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
	faker := gofakeit.New(uint64(time.Now().UnixNano()) + uint64(workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng, faker)
			case r < s.config.BookingRatio+s.config.ConfirmRatio:
				s.doConfirm(ctx, rng)
			case r < s.config.BookingRatio+s.config.ConfirmRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doAvailability(ctx, rng)
				} else {
					s.doList(ctx, rng)
				}
			}
		}
	}
}

// doBooking asks for a random aligned slot of a random doctor. Most requests
// collide with others or fall outside published hours, which exercises the
// conflict path as much as the happy one.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	doctorID := pick(rng, s.pool.Doctors)
	patientID := pick(rng, s.pool.Patients)
	date := pick(rng, s.pool.Dates)

	startMin := 8*60 + rng.Intn((11*60)/s.config.SlotMinutes)*s.config.SlotMinutes
	endMin := startMin + s.config.SlotMinutes

	body, _ := json.Marshal(map[string]string{
		"doctor_id":  doctorID,
		"date":       date,
		"start_time": clock(startMin),
		"end_time":   clock(endMin),
		"reason":     faker.RandomString(visitReasons),
	})

	start := time.Now()
	resp, err := s.send(ctx, http.MethodPost, "/appointments", patientID, "patient", body)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var apptResp struct {
				ID uuid.UUID `json:"id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if json.Unmarshal(bodyBytes, &apptResp) == nil && apptResp.ID != uuid.Nil {
				s.pool.AddAppointment(bookedAppointment{ID: apptResp.ID, PatientID: patientID, DoctorID: doctorID})
			}
		case http.StatusConflict, http.StatusServiceUnavailable:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.send(ctx, http.MethodPost, "/appointments/"+appt.ID.String()+"/confirm", appt.DoctorID, "doctor", nil)
	s.recordTransition(&s.metrics.Confirm, time.Since(start), resp, err)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]string{"notes": "cancelled by load simulation"})

	start := time.Now()
	resp, err := s.send(ctx, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", appt.PatientID, "patient", body)
	s.recordTransition(&s.metrics.Cancel, time.Since(start), resp, err)
}

func (s *Simulator) recordTransition(om *OperationMetrics, latency time.Duration, resp *http.Response, err error) {
	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	}
	om.Record(latency, success, conflict)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	path := fmt.Sprintf("/doctors/%s/availability?date=%s", pick(rng, s.pool.Doctors), pick(rng, s.pool.Dates))

	start := time.Now()
	resp, err := s.send(ctx, http.MethodGet, path, "", "", nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Availability.Record(latency, success, false)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	caller, role := pick(rng, s.pool.Patients), "patient"
	if rng.Intn(2) == 0 {
		caller, role = pick(rng, s.pool.Doctors), "doctor"
	}

	start := time.Now()
	resp, err := s.send(ctx, http.MethodGet, "/appointments?status=PENDING,CONFIRMED&limit=20", caller, role, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.List.Record(latency, success, false)
}

func (s *Simulator) send(ctx context.Context, method, path, callerID, role string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if callerID != "" {
		req.Header.Set("X-Caller-ID", callerID)
		req.Header.Set("X-Caller-Role", role)
	}
	return s.client.Do(req)
}

// auditOverlaps counts pairs of slot-holding appointments of the same doctor
// and date whose time ranges intersect. Any non-zero result is a double
// booking.
func auditOverlaps(ctx context.Context, pool *pgxpool.Pool, dates []string) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.doctor_id = b.doctor_id
		 AND a.appointment_date = b.appointment_date
		 AND a.id < b.id
		 AND a.start_time < b.end_time
		 AND b.start_time < a.end_time
		WHERE a.status IN ('PENDING', 'CONFIRMED')
		  AND b.status IN ('PENDING', 'CONFIRMED')
		  AND a.appointment_date = ANY($1::date[])
	`, dates).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("audit overlaps: %w", err)
	}
	return n, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("List", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.Intn(len(items))]
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
