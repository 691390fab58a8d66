package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/config"
	"github.com/Iksvihii/daily-watt-sub000/database"
	"github.com/Iksvihii/daily-watt-sub000/logger"
	"github.com/Iksvihii/daily-watt-sub000/models"
)

func main() {
	if len(os.Args) < 2 {
		showHelp()
		return
	}

	command := os.Args[1]

	// Initialize logging only for commands that need it
	if needsLogging(command) {
		cfg := loadConfig()
		if err := logger.Init(cfg); err != nil {
			log.Fatalf("Failed to initialize logging: %v", err)
		}
		defer func() {
			err := logger.Close()
			if err != nil {
				log.Fatalf("Failed to close logging: %v", err)
			}
		}()
		logger.LogCommand(os.Args[0], os.Args)
	}

	switch command {
	case "connect":
		connectCommand()
	case "migrate":
		migrateCommand()
	case "migrate:create":
		if len(os.Args) < 3 {
			fmt.Println("Error: migration name required")
			fmt.Println("Usage: daily-watt migrate:create <migration_name>")
			return
		}
		createMigrationCommand(os.Args[2])
	case "migrate:status":
		migrationStatusCommand()
	case "db:info":
		dbInfoCommand()
	case "serve":
		serveCommand()
	case "worker":
		workerCommand()
	case "scan":
		if len(os.Args) < 5 {
			fmt.Println("Error: directory, user and meter required")
			fmt.Println("Usage: daily-watt scan <directory_path> <user_id> <meter_id>")
			return
		}
		scanCommand(os.Args[2], os.Args[3], os.Args[4])
	case "meter:create":
		if len(os.Args) < 4 {
			fmt.Println("Error: user and PRM required")
			fmt.Println("Usage: daily-watt meter:create <user_id> <prm> [latitude longitude]")
			return
		}
		createMeterCommand(os.Args[2], os.Args[3], os.Args[4:])
	case "meter:locate":
		if len(os.Args) < 4 {
			fmt.Println("Error: user and meter required")
			fmt.Println("Usage: daily-watt meter:locate <user_id> <meter_id> [latitude longitude]")
			return
		}
		locateMeterCommand(os.Args[2], os.Args[3], os.Args[4:])
	case "meter:delete":
		if len(os.Args) < 4 {
			fmt.Println("Error: user and meter required")
			fmt.Println("Usage: daily-watt meter:delete <user_id> <meter_id>")
			return
		}
		deleteMeterCommand(os.Args[2], os.Args[3])
	case "credentials:set":
		if len(os.Args) < 5 {
			fmt.Println("Error: user, login and password required")
			fmt.Println("Usage: daily-watt credentials:set <user_id> <login> <password>")
			return
		}
		setCredentialsCommand(os.Args[2], os.Args[3], os.Args[4])
	case "demo:seed":
		if len(os.Args) < 5 {
			fmt.Println("Error: user, meter and number of days required")
			fmt.Println("Usage: daily-watt demo:seed <user_id> <meter_id> <days>")
			return
		}
		demoSeedCommand(os.Args[2], os.Args[3], os.Args[4])
	case "demo:csv":
		if len(os.Args) < 4 {
			fmt.Println("Error: output file and number of days required")
			fmt.Println("Usage: daily-watt demo:csv <file.csv|file.xlsx> <days>")
			return
		}
		demoFileCommand(os.Args[2], os.Args[3])
	case "token":
		if len(os.Args) < 3 {
			fmt.Println("Error: user required")
			fmt.Println("Usage: daily-watt token <user_id>")
			return
		}
		tokenCommand(os.Args[2])
	case "help":
		showHelp()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showHelp()
	}
}

// needsLogging determines which commands need logging
func needsLogging(command string) bool {
	loggingCommands := map[string]bool{
		"migrate":         true,
		"migrate:create":  true,
		"migrate:status":  true,
		"scan":            true,
		"connect":         true,
		"serve":           true,
		"worker":          true,
		"meter:create":    true,
		"meter:locate":    true,
		"meter:delete":    true,
		"credentials:set": true,
		"demo:seed":       true,
	}
	return loggingCommands[command]
}

func showHelp() {
	fmt.Println("Daily Watt - Energy consumption import and dashboard backend")
	fmt.Println("")
	fmt.Println("Usage: daily-watt <command> [arguments]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  connect                                  Test database connection")
	fmt.Println("  migrate                                  Run pending migrations")
	fmt.Println("  migrate:create <name>                    Create a new migration file")
	fmt.Println("  migrate:status                           Show migration status")
	fmt.Println("  db:info                                  Show database information")
	fmt.Println("  serve                                    Start the HTTP API and the import runner")
	fmt.Println("  worker                                   Start the import runner only")
	fmt.Println("  scan <directory> <user> <meter>          Enqueue an import job per export file (non-recursive)")
	fmt.Println("  meter:create <user> <prm> [lat lon]      Register a meter")
	fmt.Println("  meter:locate <user> <meter> [lat lon]    Set or clear a meter location")
	fmt.Println("  meter:delete <user> <meter>              Delete a meter and all its data")
	fmt.Println("  credentials:set <user> <login> <pass>    Store the portal credentials of a user")
	fmt.Println("  demo:seed <user> <meter> <days>          Insert synthetic half-hourly readings")
	fmt.Println("  demo:csv <file> <days>                   Write a synthetic export (.csv or .xlsx)")
	fmt.Println("  token <user>                             Print an API access token")
	fmt.Println("  help                                     Show this help message")
	fmt.Println("")
	fmt.Println("Configuration:")
	fmt.Println("  Edit config.yaml (or set DAILYWATT_CONFIG) to configure the service")
	fmt.Println("")
	fmt.Println("Export File Formats:")
	fmt.Println("  Excel: worksheet \"Consommation quotidienne\" with Date and Valeur (kWh) columns")
	fmt.Println("  CSV:   timestamp;kwh (comma or semicolon separated)")
}

func loadConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func connectDatabase() (*config.Config, error) {
	cfg := loadConfig()

	_, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return cfg, nil
}

func connectCommand() {
	logger.Println("Testing database connection...")

	cfg, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Connection failed: %v", err)
	}

	logger.Printf("✓ Successfully connected to %s database\n", cfg.Database.Driver)

	info := database.GetDatabaseInfo(cfg)
	infoJSON, _ := json.MarshalIndent(info, "", "  ")
	logger.Printf("Connection info: %s\n", infoJSON)
}

func migrateCommand() {
	logger.Println("Running database migrations...")

	cfg, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	runner := database.NewMigrationRunner(database.GetDB(), cfg)

	if err := runner.RunMigrations(); err != nil {
		logger.Fatalf("Migration failed: %v", err)
	}
}

func createMigrationCommand(name string) {
	logger.Printf("Creating migration: %s\n", name)

	cfg := loadConfig()
	runner := database.NewMigrationRunner(nil, cfg) // Don't need DB connection to create files

	filePath, err := runner.CreateMigration(name)
	if err != nil {
		logger.Fatalf("Failed to create migration: %v", err)
	}

	logger.Printf("✓ Migration created: %s\n", filePath)
}

func migrationStatusCommand() {
	logger.Println("Checking migration status...")

	cfg, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	runner := database.NewMigrationRunner(database.GetDB(), cfg)

	migrations, err := runner.GetMigrationStatus()
	if err != nil {
		logger.Fatalf("Failed to get migration status: %v", err)
	}

	if len(migrations) == 0 {
		logger.Println("No migrations found")
		return
	}

	logger.Printf("%-20s %-40s %s\n", "Version", "Name", "Status")
	logger.Println("-------------------------------------------------------------------")

	for _, migration := range migrations {
		status := "Pending"
		if migration.Applied {
			status = "Applied"
		}
		logger.Printf("%-20s %-40s %s\n", migration.Version, migration.Name, status)
	}
}

func dbInfoCommand() {
	fmt.Println("Database Information:")
	fmt.Println(strings.Repeat("=", 50))

	cfg, err := connectDatabase()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	info := database.GetDatabaseInfo(cfg)

	fmt.Printf("Database Type:     %v\n", info["driver"])
	fmt.Printf("Connection Status: %v\n", getConnectionStatusText(info["connected"]))

	switch cfg.Database.Driver {
	case "mysql", "postgres":
		fmt.Printf("Host:              %v\n", info["host"])
		fmt.Printf("Port:              %v\n", info["port"])
		fmt.Printf("Database:          %v\n", info["database"])
	case "sqlite":
		fmt.Printf("File Path:         %v\n", info["path"])
	}

	if info["connected"] == true {
		fmt.Println("\nConnection Pool:")
		fmt.Printf("  Max Connections: %v\n", info["max_open_connections"])
		fmt.Printf("  Open Connections:%v\n", info["open_connections"])
		fmt.Printf("  In Use:          %v\n", info["in_use"])
		fmt.Printf("  Idle:            %v\n", info["idle"])

		db := database.GetDB()
		var meterCount, count, pending int64
		db.Model(&models.Meter{}).Count(&meterCount)
		db.Model(&models.Measurement{}).Count(&count)
		db.Model(&models.ImportJob{}).Where("status = ?", models.ImportJobPending).Count(&pending)

		fmt.Println("\nData Information:")
		fmt.Printf("  Meters:          %d\n", meterCount)
		fmt.Printf("  Measurements:    %d\n", count)
		fmt.Printf("  Pending Imports: %d\n", pending)

		if count > 0 {
			var earliest, latest models.Measurement
			db.Order("timestamp ASC").Take(&earliest)
			db.Order("timestamp DESC").Take(&latest)
			fmt.Printf("  Date Range:      %s to %s\n",
				earliest.Timestamp.UTC().Format("2006-01-02 15:04:05"),
				latest.Timestamp.UTC().Format("2006-01-02 15:04:05"))
		}
	} else {
		fmt.Println("\nConnection failed - unable to retrieve detailed information")
	}

	fmt.Println(strings.Repeat("=", 50))
}

func getConnectionStatusText(connected interface{}) string {
	if conn, ok := connected.(bool); ok && conn {
		return "✓ Connected"
	}
	return "✗ Disconnected"
}

// daysArg parses a positive day count
func daysArg(value string) int {
	var days int
	if _, err := fmt.Sscanf(value, "%d", &days); err != nil || days <= 0 {
		log.Fatalf("Invalid number of days: %q", value)
	}
	return days
}

// lastDays returns [midnight UTC days ago, midnight UTC today)
func lastDays(days int) (time.Time, time.Time) {
	to := models.DateOf(time.Now().UTC()).Time()
	return to.AddDate(0, 0, -days), to
}
