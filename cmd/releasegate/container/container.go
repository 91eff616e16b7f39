package container

import (
	"context"
	"fmt"

	"github.com/initcodes20/releasegate/cmd/releasegate/repository"
	"github.com/initcodes20/releasegate/cmd/releasegate/service"
	"github.com/initcodes20/releasegate/common/bootstrap"
	rediscommon "github.com/initcodes20/releasegate/common/redis"
	"github.com/initcodes20/releasegate/common/storage"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Redis      *rediscommon.Client
	Blobs      *storage.MinioStore

	// Repositories
	VersionRepo *repository.VersionRepository

	// Services
	Broadcaster *service.Broadcaster
	Catalog     *service.CatalogService
	Validator   *service.Validator
	Transfer    *service.TransferPipeline
	Admission   *service.AdmissionController
	Feed        *service.ChangeFeed
}

// NewContainer initializes all services and repositories once
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	redisClient, err := rediscommon.New(ctx, components.Config, components.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	components.AddCleanup(redisClient.Close)

	blobs, err := storage.New(ctx, components.Config, components.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}

	// Initialize repositories
	versionRepo := repository.NewVersionRepository(components.DB)

	// Initialize services (bottom-up: dependencies first)
	broadcaster := service.NewBroadcaster(components.Logger)
	catalog := service.NewCatalogService(versionRepo, broadcaster, redisClient, components.Logger)
	validator := service.NewValidator(components.Config)
	transfer := service.NewTransferPipeline(blobs, components.Config, components.Logger)
	admission := service.NewAdmissionController(validator, transfer, catalog, components.Logger)
	feed := service.NewChangeFeed(redisClient, catalog, components.Logger)

	return &Container{
		Components:  components,
		Redis:       redisClient,
		Blobs:       blobs,
		VersionRepo: versionRepo,
		Broadcaster: broadcaster,
		Catalog:     catalog,
		Validator:   validator,
		Transfer:    transfer,
		Admission:   admission,
		Feed:        feed,
	}, nil
}
