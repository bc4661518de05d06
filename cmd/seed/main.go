package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-availability-scheduling/internal/appointment"
	"github.com/hackgods/doctor-availability-scheduling/internal/config"
	"github.com/hackgods/doctor-availability-scheduling/internal/db"
	"github.com/hackgods/doctor-availability-scheduling/internal/logger"
	redisclient "github.com/hackgods/doctor-availability-scheduling/internal/redis"
)

const seedAdminID = "seed-admin"

// shift patterns doctors are drawn from; times are HH:MM
var shifts = [][2]string{
	{"08:00", "12:00"},
	{"09:00", "12:30"},
	{"09:00", "17:00"},
	{"13:00", "17:00"},
	{"14:00", "19:00"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	count := config.Int("SEED_DOCTORS", 50)
	log.Info("seed starting", zap.Int("doctors", count))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	svc := appointment.NewService(
		appointment.NewPgRepository(pool),
		redisclient.NewLocalLocker(cfg.LockWait),
		log.Named("appointment"),
		nil,
	)

	faker := gofakeit.New(0)
	admin := appointment.Caller{ID: seedAdminID, Role: appointment.RoleAdmin}

	for i := 0; i < count; i++ {
		doctorID := fmt.Sprintf("dr-%s-%04d", strings.ToLower(faker.LastName()), faker.Number(0, 9999))
		templates := weeklySchedule(faker)

		stored, err := svc.SetAvailability(ctx, admin, doctorID, templates)
		if err != nil {
			log.Fatal("seed doctor availability", zap.String("doctor_id", doctorID), zap.Error(err))
		}
		log.Info("doctor seeded", zap.String("doctor_id", doctorID), zap.Int("templates", len(stored)))
	}

	log.Info("seed complete")
}

// weeklySchedule gives a doctor one shift on three to five weekdays and,
// sometimes, a Saturday morning that is published but switched off.
func weeklySchedule(faker *gofakeit.Faker) []appointment.SlotTemplate {
	days := faker.Number(3, 5)
	offset := faker.Number(0, 5-days)

	out := make([]appointment.SlotTemplate, 0, days+1)
	for d := offset; d < offset+days; d++ {
		shift := shifts[faker.Number(0, len(shifts)-1)]
		out = append(out, appointment.SlotTemplate{
			DayOfWeek:   d,
			StartTime:   shift[0],
			EndTime:     shift[1],
			IsAvailable: true,
		})
	}
	if faker.Bool() {
		out = append(out, appointment.SlotTemplate{
			DayOfWeek:   5,
			StartTime:   "09:00",
			EndTime:     "12:00",
			IsAvailable: false,
		})
	}
	return out
}
