package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"portal"`
	Password string `env:"PASSWORD"                envDefault:"portal"`
	Name     string `env:"NAME"                    envDefault:"portal"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
	// SessionPrefix namespaces session keys.
	SessionPrefix string `env:"SESSION_PREFIX" envDefault:"portal:session:"`
}

// AuditConfig controls the access-denial audit log.
type AuditConfig struct {
	// Enabled records guard denials in Postgres. When false no database is needed.
	Enabled bool `env:"AUDIT_ENABLED" envDefault:"true"`

	// Retention is how long audit rows are kept by the pruner.
	Retention time.Duration `env:"AUDIT_RETENTION" envDefault:"2160h"`

	// PruneInterval is how often the audit-pruner service runs.
	PruneInterval time.Duration `env:"AUDIT_PRUNE_INTERVAL" envDefault:"1h"`
}

// Sanitize enforces minimums so the pruner cannot spin or erase fresh rows.
func (a *AuditConfig) Sanitize() {
	if a.Retention < 24*time.Hour {
		a.Retention = 24 * time.Hour
	}
	if a.PruneInterval < time.Minute {
		a.PruneInterval = time.Minute
	}
}
