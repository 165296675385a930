package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lexmatrix/internal/adapter/linker"
	"github.com/eslsoft/lexmatrix/internal/adapter/remote"
	"github.com/eslsoft/lexmatrix/internal/adapter/repository"
	"github.com/eslsoft/lexmatrix/internal/adapter/rest"
	"github.com/eslsoft/lexmatrix/internal/infrastructure/config"
	"github.com/eslsoft/lexmatrix/internal/infrastructure/database"
	"github.com/eslsoft/lexmatrix/internal/infrastructure/server"
	"github.com/eslsoft/lexmatrix/internal/infrastructure/worker"
	repo "github.com/eslsoft/lexmatrix/internal/repository"
	"github.com/eslsoft/lexmatrix/internal/usecase"
)

// Container aggregates the application dependencies.
type Container struct {
	Config       *config.Config
	Logger       *logrus.Logger
	Dictionaries usecase.DictionaryUsecase
	Linking      usecase.LinkingUsecase
	Linker       *linker.Engine
	Pool         *worker.Pool
	Server       *server.Server
}

// Initialize builds the application container from cfg. The returned cleanup closes the
// database connection; the worker pool is created but not started.
func Initialize(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	logger, err := server.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	dictRepo, jobRepo, cleanup, err := newRepositories(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	client := remote.NewClient(cfg.Import.FetchTimeout, cfg.Import.MaxBytes, logger)
	engine := linker.NewEngine(linker.Config{
		Executable: cfg.Linking.Executable,
		Args:       cfg.Linking.Args,
		Workdir:    cfg.Linking.Workdir,
	}, linker.ExecRunner{}, dictRepo, client, logger)
	pool := worker.NewPool(cfg.Linking.Workers, cfg.Linking.Queue, logger)

	dicts := usecase.NewDictionaryUsecase(dictRepo, client, logger, usecase.WithMaxBytes(cfg.Import.MaxBytes))
	linking := usecase.NewLinkingUsecase(jobRepo, dictRepo, engine, pool, logger, usecase.WithLinkingTimeout(cfg.Linking.Timeout))
	handler := rest.NewHandler(dicts, linking, logger)

	return &Container{
		Config:       cfg,
		Logger:       logger,
		Dictionaries: dicts,
		Linking:      linking,
		Linker:       engine,
		Pool:         pool,
		Server:       server.NewServer(cfg, logger, handler.Routes()),
	}, cleanup, nil
}

func newRepositories(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (repo.DictionaryRepository, repo.LinkingJobRepository, func(), error) {
	driver, err := cfg.DatabaseDriver()
	if err != nil {
		return nil, nil, nil, err
	}
	if driver == config.DriverMemory {
		logger.Warn("using the in-memory store; dictionaries are lost on exit")
		return repository.NewDictionaryMemoryRepository(), repository.NewLinkingJobMemoryRepository(), func() {}, nil
	}

	db, cleanup, err := database.Open(cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("db connect: %w", err)
	}
	if _, err := database.Migrate(ctx, db, driver, logger); err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return repository.NewDictionarySQLRepository(db, driver), repository.NewLinkingJobSQLRepository(db, driver), cleanup, nil
}
