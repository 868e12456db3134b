// Package setup builds the shared runtime pieces of the server and the
// command line tool from a loaded configuration.
package setup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/saranrapjs/esrs-ixbrl/pkg/config"
	"github.com/saranrapjs/esrs-ixbrl/pkg/ixbrl"
	"github.com/saranrapjs/esrs-ixbrl/pkg/taxonomy"
)

// Taxonomy loads the configured taxonomy, from a local file when a path is
// set and from the remote archive otherwise. With neither configured the
// store serves an empty taxonomy. When watching is enabled the store
// reloads until ctx is cancelled.
func Taxonomy(ctx context.Context, cfg config.TaxonomyConfig, logger *zap.Logger) (*taxonomy.Store, error) {
	var idx *taxonomy.Index
	switch {
	case cfg.Path != "":
		var err error
		idx, err = taxonomy.OpenFile(cfg.Path, cfg.CalculationsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load taxonomy: %w", err)
		}
	case cfg.ArchiveURL != "":
		src := taxonomy.ArchiveSource{URL: cfg.ArchiveURL, Member: cfg.ArchiveMember}
		data, err := src.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load taxonomy archive: %w", err)
		}
		idx = taxonomy.NewIndex(data)
	default:
		logger.Warn("no taxonomy configured, serving an empty taxonomy")
	}

	store := taxonomy.NewStore(idx, taxonomy.WithLogger(logger))
	logger.Info("taxonomy loaded", zap.Int("nodes", store.Index().Len()))
	if cfg.Watch && cfg.Path != "" {
		if err := store.Watch(ctx, cfg.Path, cfg.CalculationsPath); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Generator returns an iXBRL generator with the configured output options.
func Generator(cfg config.GeneratorConfig) *ixbrl.Generator {
	var opts []ixbrl.Option
	if cfg.SchemaRef != "" {
		opts = append(opts, ixbrl.WithSchemaRef(cfg.SchemaRef))
	}
	if cfg.Heading != "" {
		opts = append(opts, ixbrl.WithHeading(cfg.Heading))
	}
	if cfg.MinimalUnits {
		opts = append(opts, ixbrl.WithMinimalUnits())
	}
	if cfg.Tooltips {
		opts = append(opts, ixbrl.WithTooltips())
	}
	return ixbrl.NewGenerator(opts...)
}
