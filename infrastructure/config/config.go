package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion       string
	MemoriesTable   string
	FragmentsTable  string
	AccountsTable   string
	LocksTable      string
	OwnerIndexName  string // GSI for owner-scoped memory queries
	MemoryIndexName string // GSI for memory-scoped fragment queries
	EmailIndexName  string // GSI for account lookup by email
	EventBusName    string

	// Storage configuration
	StorageBackend string // "supabase" or "fake"
	SupabaseURL    string
	SupabaseKey    string
	StorageBucket  string

	// Logging
	LogLevel string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Feature flags
	EnableMetrics bool
	EnableCORS    bool

	// Rate limiting
	RateLimitPerMinute int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		AWSRegion:       getEnv("AWS_REGION", "us-west-2"),
		MemoriesTable:   getEnv("MEMORIES_TABLE", "keepsake-memories"),
		FragmentsTable:  getEnv("FRAGMENTS_TABLE", "keepsake-fragments"),
		AccountsTable:   getEnv("ACCOUNTS_TABLE", "keepsake-accounts"),
		LocksTable:      getEnv("LOCKS_TABLE", "keepsake-locks"),
		OwnerIndexName:  getEnv("OWNER_INDEX_NAME", "OwnerIndex"),
		MemoryIndexName: getEnv("MEMORY_INDEX_NAME", "MemoryIndex"),
		EmailIndexName:  getEnv("EMAIL_INDEX_NAME", "EmailIndex"),
		EventBusName:    getEnv("EVENT_BUS_NAME", "keepsake-events"),

		StorageBackend: getEnv("STORAGE_BACKEND", "fake"),
		SupabaseURL:    getEnv("SUPABASE_URL", ""),
		SupabaseKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		StorageBucket:  getEnv("STORAGE_BUCKET", "fragments"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "keepsake-backend"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.StorageBackend != "fake" && c.StorageBackend != "supabase" {
		return fmt.Errorf("STORAGE_BACKEND must be \"fake\" or \"supabase\", got %q", c.StorageBackend)
	}
	if c.StorageBackend == "supabase" {
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required when STORAGE_BACKEND=supabase")
		}
		if c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_SERVICE_KEY is required when STORAGE_BACKEND=supabase")
		}
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.MemoriesTable == "" {
			return fmt.Errorf("MEMORIES_TABLE is required")
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
