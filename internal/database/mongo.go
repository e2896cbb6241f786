package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/formcraft/formcraft-backend/internal/config"
)

// NewMongoDatabase connects to MongoDB and returns the configured database.
// Embedded documents decode as bson.M so that open-ended answers round-trip
// through JSON.
func NewMongoDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*mongo.Database, error) {
	opts := options.Client().
		ApplyURI(cfg.MongoURL).
		SetMaxPoolSize(uint64(cfg.MaxDBConns)).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	log.Info().
		Str("database", cfg.MongoDatabase).
		Msg("MongoDB connected")

	return client.Database(cfg.MongoDatabase), nil
}
