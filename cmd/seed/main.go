package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
	"github.com/hackgods/clinic-appointment-client/internal/logger"
	"github.com/hackgods/clinic-appointment-client/internal/remote"
)

// SeedConfig controls how much data is pushed through the clinic API.
type SeedConfig struct {
	APIBaseURL      string `env:"CLINIC_API_BASE_URL" envDefault:"http://localhost:5000/api"`
	Patients        int    `env:"SEED_PATIENTS" envDefault:"50"`
	PerPatient      int    `env:"SEED_APPOINTMENTS_PER_PATIENT" envDefault:"3"`
	DaysAround      int    `env:"SEED_DAYS_AROUND" envDefault:"14"` // appointments land within +/- this many days of today
	Concurrency     int    `env:"SEED_CONCURRENCY" envDefault:"8"`
	Password        string `env:"SEED_PASSWORD" envDefault:"seed-password"`
	TelemedicinePct int    `env:"SEED_TELEMEDICINE_PCT" envDefault:"25"`
}

var reasons = []string{
	"Annual checkup",
	"Follow-up visit",
	"Blood pressure review",
	"Skin rash",
	"Back pain",
	"Prescription renewal",
	"Vaccination",
	"Lab results discussion",
	"Headaches",
	"Allergy consultation",
}

var slots = []string{"09:00", "09:30", "10:00", "10:30", "11:00", "13:00", "13:30", "14:00", "15:00", "16:30"}

func main() {
	log := logger.Component(logger.New("info", "text"), "seed")
	log.Info("seed starting")

	_ = godotenv.Load()
	var cfg SeedConfig
	if err := env.Parse(&cfg); err != nil {
		log.WithError(err).Fatal("parse env")
	}
	if cfg.Patients <= 0 || cfg.Concurrency <= 0 {
		log.Fatal("SEED_PATIENTS and SEED_CONCURRENCY must be > 0")
	}

	client := remote.New(cfg.APIBaseURL, 10*time.Second, remote.WithLogger(log))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	doctors, err := client.ListDoctors(ctx)
	if err != nil {
		log.WithError(err).Fatal("list doctors")
	}
	if len(doctors) == 0 {
		log.Fatal("clinic API has no active doctors to book against")
	}
	log.WithField("doctors", len(doctors)).Info("loaded doctors")

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	patients := make([]appointment.Registration, cfg.Patients)
	for i := range patients {
		p := faker.Person()
		patients[i] = appointment.Registration{
			FullName:    p.FirstName + " " + p.LastName,
			Email:       fmt.Sprintf("%d.%s", i, faker.Email()),
			PhoneNumber: fmt.Sprintf("+1555%07d", faker.Number(0, 9999999)),
			Age:         faker.Number(1, 95),
			Password:    cfg.Password,
			Role:        appointment.RolePatient,
		}
	}

	plans := make([][]appointment.NewAppointment, cfg.Patients)
	today := time.Now().UTC()
	for i := range plans {
		for j := 0; j < cfg.PerPatient; j++ {
			plans[i] = append(plans[i], plan(faker, cfg, today, doctors))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)

	for i := range patients {
		reg, appts := patients[i], plans[i]
		g.Go(func() error {
			return seedPatient(gctx, log, client, reg, appts)
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("seed failed")
	}

	log.WithFields(logrus.Fields{
		"patients":     cfg.Patients,
		"appointments": cfg.Patients * cfg.PerPatient,
	}).Info("seed complete")
}

func plan(faker *gofakeit.Faker, cfg SeedConfig, today time.Time, doctors []appointment.Doctor) appointment.NewAppointment {
	day := today.AddDate(0, 0, faker.Number(-cfg.DaysAround, cfg.DaysAround))
	doctor := doctors[faker.Number(0, len(doctors)-1)]

	mode := appointment.ModeInPerson
	if faker.Number(1, 100) <= cfg.TelemedicinePct {
		mode = appointment.ModeVideoCall
	}

	status := appointment.StatusScheduled
	switch {
	case day.Before(today.Truncate(24 * time.Hour)):
		status = appointment.StatusCompleted
		if faker.Number(1, 10) == 1 {
			status = appointment.StatusCancelled
		}
	case faker.Bool():
		status = appointment.StatusConfirmed
	}

	return appointment.NewAppointment{
		DoctorID: doctor.ID,
		Date:     day.Format(appointment.DateLayout),
		Time:     slots[faker.Number(0, len(slots)-1)],
		Duration: []int{15, 30, 45, 60}[faker.Number(0, 3)],
		Reason:   reasons[faker.Number(0, len(reasons)-1)],
		Mode:     mode,
		Status:   status,
	}
}

func seedPatient(ctx context.Context, log *logrus.Entry, client *remote.Client, reg appointment.Registration, appts []appointment.NewAppointment) error {
	user, err := client.SignUp(ctx, reg)
	if err != nil {
		return fmt.Errorf("sign up %s: %w", reg.Email, err)
	}

	for _, a := range appts {
		a.PatientID = user.ID
		if _, err := client.CreateAppointment(ctx, a); err != nil {
			return fmt.Errorf("create appointment for %s: %w", reg.Email, err)
		}
	}

	log.WithField("patient_id", user.ID).WithField("appointments", len(appts)).Debug("patient seeded")
	return nil
}
