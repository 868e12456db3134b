package config

import "github.com/saranrapjs/esrs-ixbrl/pkg/ixbrl"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "esrs.db"
	}
	if cfg.Taxonomy.Path == "" && cfg.Taxonomy.ArchiveURL != "" && cfg.Taxonomy.ArchiveMember == "" {
		cfg.Taxonomy.ArchiveMember = "esrs_taxonomy.json"
	}
	if cfg.Generator.SchemaRef == "" {
		cfg.Generator.SchemaRef = ixbrl.DefaultSchemaRef
	}
	if cfg.Generator.Heading == "" {
		cfg.Generator.Heading = ixbrl.DefaultHeading
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:8000"
	}
	if cfg.Backend.RateLimit == 0 {
		cfg.Backend.RateLimit = 10
	}
}
