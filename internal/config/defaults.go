package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8765
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/recall/data/vectors.db"
	}
	if cfg.Embedding.Endpoint == "" {
		cfg.Embedding.Endpoint = "http://localhost:8080"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "all-MiniLM-L6-v2"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "RECALL_EMBEDDING_API_KEY"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Index.ChunkSize == 0 {
		cfg.Index.ChunkSize = 1000
	}
	if cfg.Index.ChunkOverlap == 0 {
		cfg.Index.ChunkOverlap = 200
	}
	if cfg.Index.Concurrency == 0 {
		cfg.Index.Concurrency = 4
	}
	if cfg.Index.DefaultLimit == 0 {
		cfg.Index.DefaultLimit = 10
	}
	if cfg.Index.MaxLimit == 0 {
		cfg.Index.MaxLimit = 100
	}
	if cfg.Library.Extensions == nil {
		cfg.Library.Extensions = []string{".md", ".txt"}
	}
}
