package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/clientdata"
	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/database"
)

// InitializeDatabases opens the price cache database and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{Config: cfg}

	cacheDB, err := database.New(database.Config{
		Path:    cfg.CachePath(),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	if err := cacheDB.Migrate(); err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}
	container.CacheDB = cacheDB
	container.ClientData = clientdata.NewRepository(cacheDB.Conn())

	log.Info().Str("path", cacheDB.Path()).Msg("Cache database initialized")
	return container, nil
}
