package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/aggregation"
	"github.com/Iksvihii/daily-watt-sub000/api"
	"github.com/Iksvihii/daily-watt-sub000/config"
	"github.com/Iksvihii/daily-watt-sub000/dashboard"
	"github.com/Iksvihii/daily-watt-sub000/database"
	"github.com/Iksvihii/daily-watt-sub000/demo"
	"github.com/Iksvihii/daily-watt-sub000/events"
	"github.com/Iksvihii/daily-watt-sub000/importer"
	"github.com/Iksvihii/daily-watt-sub000/logger"
	"github.com/Iksvihii/daily-watt-sub000/metrics"
	"github.com/Iksvihii/daily-watt-sub000/mirror"
	"github.com/Iksvihii/daily-watt-sub000/models"
	"github.com/Iksvihii/daily-watt-sub000/repository"
	"github.com/Iksvihii/daily-watt-sub000/scanner"
	"github.com/Iksvihii/daily-watt-sub000/secret"
	"github.com/Iksvihii/daily-watt-sub000/source"
	"github.com/Iksvihii/daily-watt-sub000/weather"

	"github.com/hashicorp/go-multierror"
)

const (
	demoSeed       = 42
	tokenTTL       = 24 * time.Hour
	shutdownPeriod = 10 * time.Second
)

// app holds the collaborators shared by serve and worker
type app struct {
	cfg       *config.Config
	repo      *repository.Repository
	recorder  *metrics.PrometheusRecorder
	syncer    *weather.Engine
	publisher events.Publisher
	sink      mirror.Sink
	runner    *importer.Runner
}

// openRepository connects, applies migrations and returns the repository
func openRepository() (*config.Config, *repository.Repository) {
	cfg, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.NewMigrationRunner(database.GetDB(), cfg).RunMigrations(); err != nil {
		logger.Fatalf("Migration failed: %v", err)
	}
	return cfg, repository.New(database.GetDB())
}

func buildApp() *app {
	cfg, repo := openRepository()
	a := &app{
		cfg:       cfg,
		repo:      repo,
		recorder:  metrics.NewPrometheusRecorder(),
		publisher: events.NoOpPublisher{},
		sink:      mirror.NoOpSink{},
	}

	protector, err := secret.NewAEADProtector(cfg.Secrets.Passphrase, cfg.Secrets.Salt)
	if err != nil {
		logger.Fatalf("Failed to initialize credential protection: %v", err)
	}

	if cfg.Weather.Enabled {
		provider := weather.NewOpenMeteoProvider(cfg.Weather.BaseURL, cfg.Weather.Timeout)
		a.syncer = weather.NewEngine(repo, provider, a.recorder)
		logger.Printf("Weather enrichment enabled (%s)", cfg.Weather.BaseURL)
	}

	if cfg.Kafka.Enabled {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			logger.Fatalf("Failed to connect to kafka: %v", err)
		}
		a.publisher = publisher
		logger.Printf("Publishing job events to %s on %s", cfg.Kafka.Topic, strings.Join(cfg.Kafka.Brokers, ","))
	}

	if cfg.InfluxDB.Enabled {
		a.sink = mirror.NewInfluxSink(cfg.InfluxDB)
		logger.Printf("Mirroring measurements to InfluxDB bucket %s", cfg.InfluxDB.Bucket)
	}

	opts := importer.Options{
		Store:        repo,
		Source:       source.NewExportService(cfg.Scraper.URL, cfg.Scraper.Timeout),
		Protector:    protector,
		Recorder:     a.recorder,
		Publisher:    a.publisher,
		Sink:         a.sink,
		PollInterval: cfg.Importer.PollInterval,
	}
	if a.syncer != nil {
		opts.Weather = a.syncer
	}
	a.runner = importer.NewRunner(opts)

	return a
}

// dashboardSyncer keeps a disabled engine out of the interface as a typed nil
func (a *app) dashboardSyncer() dashboard.WeatherSyncer {
	if a.syncer == nil {
		return nil
	}
	return a.syncer
}

func (a *app) close() error {
	var result *multierror.Error
	if err := a.publisher.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close publisher: %w", err))
	}
	a.sink.Close()
	if err := database.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close database: %w", err))
	}
	return result.ErrorOrNil()
}

// startRunner reconciles interrupted jobs when configured, then runs the poll loop in the background
func (a *app) startRunner(ctx context.Context) <-chan struct{} {
	if a.cfg.Importer.ReconcileOnStart {
		if _, err := a.runner.ReconcileInterrupted(ctx); err != nil {
			logger.Errorf("Failed to reconcile interrupted jobs: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.runner.Run(ctx)
	}()
	return done
}

func serveCommand() {
	a := buildApp()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs := importer.NewService(a.repo, a.cfg.Importer.UploadDir)
	composer := dashboard.NewComposer(a.repo, aggregation.NewService(a.repo), a.repo, a.dashboardSyncer())
	server := api.NewServer(a.cfg.Server, jobs, composer, a.recorder.Handler())

	httpServer := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runnerDone := a.startRunner(ctx)

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("Listening on %s", a.cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Println("Shutdown requested")
	case err := <-serverErr:
		logger.Errorf("HTTP server failed: %v", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP shutdown: %v", err)
	}
	<-runnerDone

	if err := a.close(); err != nil {
		logger.Errorf("Shutdown: %v", err)
	}
	logger.Println("✓ Server stopped")
}

func workerCommand() {
	a := buildApp()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-a.startRunner(ctx)

	if err := a.close(); err != nil {
		logger.Errorf("Shutdown: %v", err)
	}
	logger.Println("✓ Worker stopped")
}

func scanCommand(directoryPath, userID, meterID string) {
	logger.Printf("Scanning directory: %s\n", directoryPath)

	cfg, repo := openRepository()
	jobs := importer.NewService(repo, cfg.Importer.UploadDir)

	fileScanner := scanner.NewScanner(jobs)
	fileScanner.SetWorkerCount(cfg.Importer.ScanWorkers)

	results, err := fileScanner.ScanDirectory(context.Background(), directoryPath, userID, meterID)
	if err != nil {
		logger.Fatalf("Scan failed: %v", err)
	}

	queued := 0
	for _, result := range results {
		if result.Error == nil {
			queued++
		}
	}
	logger.LogResult("Directory scan", queued == len(results), fmt.Sprintf("%d/%d file(s) queued", queued, len(results)))
	if queued > 0 {
		logger.Println("Jobs are processed by a running `serve` or `worker` instance")
	}
}

// parseLocation reads an optional "lat lon" argument pair
func parseLocation(args []string) (*float64, *float64) {
	if len(args) == 0 {
		return nil, nil
	}
	if len(args) != 2 {
		logger.Fatalf("Location needs both latitude and longitude")
	}
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil || lat < -90 || lat > 90 {
		logger.Fatalf("Invalid latitude: %q", args[0])
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil || lon < -180 || lon > 180 {
		logger.Fatalf("Invalid longitude: %q", args[1])
	}
	return &lat, &lon
}

func createMeterCommand(userID, prm string, location []string) {
	_, repo := openRepository()
	lat, lon := parseLocation(location)

	meter := &models.Meter{UserID: userID, Prm: prm, Label: prm, Latitude: lat, Longitude: lon}
	if err := repo.CreateMeter(context.Background(), meter); err != nil {
		logger.Fatalf("Failed to create meter: %v", err)
	}
	logger.Printf("✓ Meter created: %s (PRM %s)\n", meter.ID, meter.Prm)
}

func locateMeterCommand(userID, meterID string, location []string) {
	_, repo := openRepository()
	lat, lon := parseLocation(location)

	if err := repo.UpdateMeterLocation(context.Background(), userID, meterID, lat, lon); err != nil {
		logger.Fatalf("Failed to update meter location: %v", err)
	}
	if lat == nil {
		logger.Printf("✓ Location of meter %s cleared\n", meterID)
		return
	}
	logger.Printf("✓ Meter %s located at %.4f, %.4f\n", meterID, *lat, *lon)
}

func deleteMeterCommand(userID, meterID string) {
	_, repo := openRepository()
	if err := repo.DeleteMeter(context.Background(), userID, meterID); err != nil {
		logger.Fatalf("Failed to delete meter: %v", err)
	}
	logger.Printf("✓ Meter %s deleted with its measurements, jobs and weather\n", meterID)
}

func setCredentialsCommand(userID, login, password string) {
	cfg, repo := openRepository()

	protector, err := secret.NewAEADProtector(cfg.Secrets.Passphrase, cfg.Secrets.Salt)
	if err != nil {
		logger.Fatalf("Failed to initialize credential protection: %v", err)
	}
	sealed, err := protector.Protect([]byte(password))
	if err != nil {
		logger.Fatalf("Failed to protect password: %v", err)
	}

	cred := &models.Credential{UserID: userID, Login: login, PasswordProtected: sealed}
	if err := repo.SaveCredential(context.Background(), cred); err != nil {
		logger.Fatalf("Failed to save credentials: %v", err)
	}
	logger.Printf("✓ Credentials stored for user %s\n", userID)
}

func demoSeedCommand(userID, meterID, daysValue string) {
	days := daysArg(daysValue)
	_, repo := openRepository()
	ctx := context.Background()

	if _, err := repo.GetMeter(ctx, userID, meterID); err != nil {
		logger.Fatalf("Cannot seed meter: %v", err)
	}

	from, to := lastDays(days)
	readings := demo.Generate(demoSeed, userID, meterID, from, to)
	count, err := repo.ReplaceMeasurements(ctx, userID, meterID, from, to.Add(-time.Second), readings)
	if err != nil {
		logger.Fatalf("Failed to insert demo readings: %v", err)
	}
	logger.Printf("✓ Inserted %d demo reading(s) from %s to %s\n",
		count, from.Format("2006-01-02"), to.Format("2006-01-02"))
}

func demoFileCommand(path, daysValue string) {
	days := daysArg(daysValue)
	from, to := lastDays(days)
	readings := demo.Generate(demoSeed, "demo", "demo", from, to)

	file, err := os.Create(path)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		err = demo.WriteDailyWorkbook(file, readings)
	} else {
		err = demo.WriteCSV(file, readings)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		log.Fatalf("Failed to write %s: %v", path, err)
	}

	fmt.Printf("✓ Wrote %d day(s) of demo readings to %s\n", days, path)
}

func tokenCommand(userID string) {
	cfg := loadConfig()
	if cfg.Server.JWTSecret == "" {
		log.Fatalf("server.jwt_secret is not configured")
	}
	tokens := api.Tokens{Secret: []byte(cfg.Server.JWTSecret), Issuer: cfg.Server.JWTIssuer}
	token, err := tokens.CreateToken(userID, tokenTTL)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
