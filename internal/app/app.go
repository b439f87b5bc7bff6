// Package app wires the runtime graph shared by the Lambda and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"taste-agent/internal/config"
	"taste-agent/internal/integrations/openai"
	"taste-agent/internal/integrations/paramstore"
	"taste-agent/internal/repository"
	"taste-agent/internal/store"
	"taste-agent/internal/tools"
	"taste-agent/internal/usecase"
)

type App struct {
	Orchestrator *usecase.Orchestrator
	Tools        *tools.Registry
	// Journal is nil unless JOURNAL_TABLE is set.
	Journal *repository.Journal
}

// Build constructs every component. AWS clients are created only when a
// setting needs them: PARAM_PREFIX for SSM, a table name for DynamoDB.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		params *paramstore.Client
		dynamo *awsdynamodb.Client
	)
	if cfg.ParamPrefix != "" || cfg.RestaurantTable != "" || cfg.JournalTable != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load AWS config: %w", err)
		}
		if cfg.ParamPrefix != "" {
			params, err = paramstore.New(awsssm.NewFromConfig(awsCfg))
			if err != nil {
				return nil, fmt.Errorf("app: create SSM client: %w", err)
			}
		}
		if cfg.RestaurantTable != "" || cfg.JournalTable != "" {
			dynamo = awsdynamodb.NewFromConfig(awsCfg)
		}
	}

	modelOpts := []openai.Option{
		openai.WithModel(cfg.OpenAIModel),
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithTemperature(cfg.OpenAITemperature),
		openai.WithLogger(logger),
	}
	if cfg.OpenAIAPIKey != "" {
		modelOpts = append(modelOpts, openai.WithAPIKey(cfg.OpenAIAPIKey))
	}
	var getter openai.Getter
	if params != nil {
		getter = params
	}
	model, err := openai.NewClient(getter, cfg.ParamPrefix, modelOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: create OpenAI client: %w", err)
	}

	var searcher tools.RestaurantSearcher
	if cfg.RestaurantTable != "" {
		catalog, err := repository.NewRestaurantCatalog(dynamo, cfg.RestaurantTable)
		if err != nil {
			return nil, fmt.Errorf("app: create restaurant catalog: %w", err)
		}
		searcher = catalog
	} else {
		logger.Warn("RESTAURANT_TABLE not set, restaurant search is unavailable")
	}

	profiles := store.NewProfileStore()
	registry, err := tools.NewRegistry(profiles, searcher, tools.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("app: create tool registry: %w", err)
	}

	orchOpts := []usecase.Option{
		usecase.WithLimits(cfg.Limits),
		usecase.WithLogger(logger),
	}
	if params != nil {
		orchOpts = append(orchOpts, usecase.WithPinnedPrompt(params, cfg.ParamPrefix))
	}

	a := &App{Tools: registry}
	if cfg.JournalTable != "" {
		a.Journal, err = repository.NewJournal(dynamo, cfg.JournalTable)
		if err != nil {
			return nil, fmt.Errorf("app: create journal: %w", err)
		}
		orchOpts = append(orchOpts, usecase.WithRecorder(a.Journal))
	}

	a.Orchestrator, err = usecase.NewOrchestrator(
		model,
		registry,
		store.NewConversationStore(),
		store.NewActivityTracker(cfg.ConversationTTL),
		profiles,
		orchOpts...,
	)
	if err != nil {
		return nil, fmt.Errorf("app: create orchestrator: %w", err)
	}
	return a, nil
}
