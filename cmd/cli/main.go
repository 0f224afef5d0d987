package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/payhub/internal/repository"
	"github.com/aryan0dhankhar/payhub/internal/security/audit"
	"github.com/aryan0dhankhar/payhub/internal/security/auth"
	"github.com/aryan0dhankhar/payhub/internal/service"
	"github.com/aryan0dhankhar/payhub/pkg/config"
	"github.com/aryan0dhankhar/payhub/pkg/database"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "migrate":
		handleMigrate(ctx, cfg, args)
	case "super-admin":
		handleSuperAdmin(ctx, cfg, args)
	case "plans":
		listPlans(cfg, args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleMigrate(ctx context.Context, cfg *config.Config, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: payhub migrate <up|down|version>")
		return
	}

	switch args[0] {
	case "up":
		if err := database.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			fail("%v", err)
		}
		fmt.Println("Migrations applied")
	case "down":
		fs := flag.NewFlagSet("down", flag.ExitOnError)
		steps := fs.Int("steps", 1, "number of migrations to roll back")
		_ = fs.Parse(args[1:])
		if err := database.RollbackMigrations(ctx, cfg.DatabaseURL, *steps); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Rolled back %d migration(s)\n", *steps)
	case "version":
		version, err := database.MigrationVersion(ctx, cfg.DatabaseURL)
		if err != nil {
			fail("%v", err)
		}
		fmt.Printf("Schema version: %d\n", version)
	default:
		fmt.Printf("unknown migrate command: %s\n", args[0])
	}
}

func handleSuperAdmin(ctx context.Context, cfg *config.Config, args []string) {
	if len(args) < 1 || args[0] != "create" {
		fmt.Println("Usage: payhub super-admin create -email <email> -name <name> [-password <password>]")
		return
	}

	fs := flag.NewFlagSet("create", flag.ExitOnError)
	email := fs.String("email", "", "super admin email")
	name := fs.String("name", "", "display name")
	password := fs.String("password", "", "password (prompted when omitted)")
	_ = fs.Parse(args[1:])

	if *email == "" || *name == "" {
		fmt.Println("Error: email and name are required")
		fs.PrintDefaults()
		os.Exit(1)
	}
	if *password == "" {
		*password = promptPassword()
	}

	log := logger.NewLogger(cfg.LogLevel)
	pool, err := database.NewConnectionPool(ctx, &database.Config{
		URL:          cfg.DatabaseURL,
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	}, log)
	if err != nil {
		fail("connect database: %v", err)
	}
	defer pool.Close()

	db := pool.GetDB()
	users := repository.NewPostgresUserRepository(db, log)
	institutions := repository.NewPostgresInstitutionRepository(db, log)
	authService := service.NewAuthService(
		users,
		institutions,
		service.NewInstitutionGate(institutions, nil),
		auth.NewPasswordHasher(cfg.BcryptCost),
		auth.NewTokenManager(cfg.JWTSecret, "payhub", cfg.JWTExpiresIn),
		audit.NewLogger(repository.NewPostgresAuditRepository(db, log), log),
		log,
	)

	result, err := authService.CreateSuperAdmin(ctx, service.SuperAdminInput{
		Email:    *email,
		Password: *password,
		Name:     *name,
	})
	if err != nil {
		fail("%s", domain.Message(err))
	}
	fmt.Printf("Super admin created: %s (%s)\n", result.User.Email, result.User.ID)
}

func promptPassword() string {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fail("password is required when stdin is not a terminal")
	}
	fmt.Print("Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		fail("read password: %v", err)
	}
	fmt.Print("Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		fail("read password: %v", err)
	}
	if string(first) != string(second) {
		fail("passwords don't match")
	}
	return string(first)
}

func listPlans(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("plans", flag.ExitOnError)
	file := fs.String("file", cfg.PlansFile, "plan catalog YAML (embedded catalog when empty)")
	_ = fs.Parse(args)

	plans, err := service.LoadPlans(*file)
	if err != nil {
		fail("%v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tCYCLE\tFEATURES")
	for _, p := range plans {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n", p.ID, p.Name, p.Price, p.BillingCycle, strings.Join(p.Features, ", "))
	}
	_ = w.Flush()
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`PayHub operator CLI

Usage:
  payhub migrate up                 Apply pending migrations
  payhub migrate down [-steps N]    Roll back migrations
  payhub migrate version            Show schema version
  payhub super-admin create         Create the super admin account
  payhub plans [-file path]         Show the subscription plan catalog
  payhub help                       Show this help`)
}
