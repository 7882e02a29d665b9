package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/contract-nlq/pkg/config"
	"github.com/ekaya-inc/contract-nlq/pkg/database"
	"github.com/ekaya-inc/contract-nlq/pkg/logging"
	"github.com/ekaya-inc/contract-nlq/pkg/planner"
	"github.com/ekaya-inc/contract-nlq/pkg/repositories"
	"github.com/ekaya-inc/contract-nlq/pkg/services"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	rules, err := config.LoadRules(cfg.Planner.RulesPath)
	if err != nil {
		return fmt.Errorf("failed to load planner rules: %w", err)
	}

	resolver := planner.NewSynonymResolver(rules, logger)
	fts := planner.NewFullTextBuilder(cfg.Planner, rules, logger)
	parse := planner.NewParser(resolver, planner.NewEqualityExtractor(rules, resolver, logger), fts, logger)
	assemble := planner.NewAssembler(cfg.Planner.Table, rules, fts, logger)
	hints := planner.NewHintParser(cfg.Planner.Table, rules, resolver, fts, logger)

	var repo services.SnapshotPersister
	if cfg.Database.Persist {
		db, err := database.NewConnection(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		sqlDB, err := database.OpenSQL(cfg.Database)
		if err != nil {
			return err
		}
		if err := database.RunMigrations(sqlDB, "migrations", logger); err != nil {
			_ = sqlDB.Close()
			return err
		}
		_ = sqlDB.Close()
		repo = repositories.NewSnapshotRepository(db)
		logger.Info("snapshot persistence enabled",
			zap.String("dsn", logging.SanitizeConnectionString(cfg.Database.URL())))
	}

	store := services.NewSnapshotStore(cfg.Feedback, repo, logger)
	defer store.Stop()

	answers := services.NewAnswerService(parse, assemble, store, nil, time.Now, logger)
	feedback := services.NewFeedbackService(cfg.Feedback, hints, assemble, store, nil, time.Now, logger)

	switch os.Args[1] {
	case "plan":
		if len(os.Args) < 3 {
			usage()
			return fmt.Errorf("plan requires a question")
		}
		return plan(ctx, answers, os.Args[2])
	case "rate":
		if len(os.Args) < 4 {
			usage()
			return fmt.Errorf("rate requires a request id and a rating")
		}
		comment := ""
		if len(os.Args) > 4 {
			comment = os.Args[4]
		}
		return rate(ctx, feedback, os.Args[2], os.Args[3], comment)
	default:
		usage()
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

func plan(ctx context.Context, answers services.AnswerService, question string) error {
	answer, err := answers.Answer(ctx, question)
	if err != nil {
		return err
	}
	dump, err := answers.DebugDump(answer)
	if err != nil {
		return err
	}
	fmt.Println(dump)
	fmt.Println()
	fmt.Println("explain:", answer.Explanation)
	return nil
}

func rate(ctx context.Context, feedback services.FeedbackService, rawID, rawRating, comment string) error {
	requestID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("failed to parse request id: %w", err)
	}
	rating, err := strconv.Atoi(rawRating)
	if err != nil {
		return fmt.Errorf("failed to parse rating: %w", err)
	}

	answer, state, err := feedback.Rate(ctx, requestID, rating, comment)
	if err != nil {
		return err
	}
	fmt.Println("state:", state)
	if answer != nil {
		fmt.Println("sql:", answer.SQL)
		fmt.Println("explain:", answer.Explanation)
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `contract-nlq %s - deterministic contract question planner

usage:
  contract-nlq plan "<question>"
  contract-nlq rate <request-id> <rating> ["<correction comment>"]
`, version)
}
