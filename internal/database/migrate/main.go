// Command migrate applies the SQL migrations under internal/database/migrations.
//
//	migrate up | down | version | steps <n> | force <version>
package main

import (
	"database/sql"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Niiaks/Escrow/internal/config"
	"github.com/Niiaks/Escrow/internal/logger"
)

const defaultSource = "file://internal/database/migrations"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	log := logger.NewLoggerWithService(cfg.Observability, nil).With().Str("component", "migrate").Logger()

	if len(os.Args) < 2 {
		log.Fatal().Msg("usage: migrate up|down|version|steps <n>|force <version>")
	}

	m, closeDB, err := open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open migrations")
	}
	defer closeDB()

	if err := run(m, os.Args[1], os.Args[2:], &log); err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("migration failed")
	}
}

func open(cfg *config.Config) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, errors.Wrap(err, "open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "ping database")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "init postgres driver")
	}

	source := os.Getenv("ESCROW_MIGRATIONS_PATH")
	if source == "" {
		source = defaultSource
	}
	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, errors.Wrapf(err, "load migrations from %s", source)
	}
	return m, func() { m.Close() }, nil
}

func run(m *migrate.Migrate, cmd string, args []string, log *zerolog.Logger) error {
	switch cmd {
	case "up":
		return ignoreNoChange(m.Up())
	case "down":
		return ignoreNoChange(m.Down())
	case "steps":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		return ignoreNoChange(m.Steps(n))
	case "force":
		v, err := intArg(args)
		if err != nil {
			return err
		}
		if err := m.Force(v); err != nil {
			return err
		}
	case "version":
	default:
		return errors.Errorf("unknown command %q", cmd)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
	return nil
}

func intArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, errors.New("missing numeric argument")
	}
	n, err := strconv.Atoi(args[0])
	return n, errors.Wrapf(err, "parse %q", args[0])
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
