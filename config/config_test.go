package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.True(t, cfg.IsDevelopment())
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "dev", cfg.Database.User)
				assert.Equal(t, "tutoring", cfg.Database.Database)
				assert.True(t, cfg.Database.AutoMigrate)
				assert.Empty(t, cfg.SecurityLog.Secret)
				assert.False(t, cfg.SecurityLog.IngestionAuthEnabled())
				assert.Equal(t, DefaultSecurityLogHeader, cfg.SecurityLog.Header)
				assert.Equal(t, int64(65536), cfg.SecurityLog.MaxBodyBytes)
				assert.Equal(t, 1000, cfg.SecurityLog.RecorderBuffer)
				assert.Equal(t, 2, cfg.SecurityLog.RecorderWorkers)
				assert.True(t, cfg.RateLimit.Enabled)
				assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
				assert.Equal(t, 20, cfg.RateLimit.Burst)
				assert.Empty(t, cfg.Redis.URL)
				assert.Equal(t, []string{"http://localhost:*"}, cfg.CORS.AllowedOrigins)
				assert.Empty(t, cfg.Server.TrustedProxies)
			},
		},
		{
			name: "security log configuration",
			envVars: map[string]string{
				"SECURITY_LOG_SECRET":           "s3cret",
				"SECURITY_LOG_HEADER":           "X-Audit-Key",
				"SECURITY_LOG_MAX_BODY_BYTES":   "1024",
				"SECURITY_LOG_RECORDER_BUFFER":  "50",
				"SECURITY_LOG_RECORDER_WORKERS": "4",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.SecurityLog.IngestionAuthEnabled())
				assert.Equal(t, "s3cret", cfg.SecurityLog.Secret)
				assert.Equal(t, "X-Audit-Key", cfg.SecurityLog.Header)
				assert.Equal(t, int64(1024), cfg.SecurityLog.MaxBodyBytes)
				assert.Equal(t, 50, cfg.SecurityLog.RecorderBuffer)
				assert.Equal(t, 4, cfg.SecurityLog.RecorderWorkers)
			},
		},
		{
			name: "database URL takes precedence",
			envVars: map[string]string{
				"DATABASE_URL":    "postgres://user:pw@db.internal:6543/audit?sslmode=require",
				"DB_AUTO_MIGRATE": "false",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgres://user:pw@db.internal:6543/audit?sslmode=require", cfg.Database.DSN())
				assert.Equal(t, "host=db.internal port=6543 database=audit", cfg.Database.LogString())
				assert.False(t, cfg.Database.AutoMigrate)
			},
		},
		{
			name: "custom timeouts and pool settings",
			envVars: map[string]string{
				"SERVER_READ_TIMEOUT":  "60s",
				"SERVER_WRITE_TIMEOUT": "90s",
				"DB_MAX_OPEN_CONNS":    "50",
				"DB_MAX_IDLE_CONNS":    "10",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
				assert.Equal(t, 50, cfg.Database.MaxOpenConns)
				assert.Equal(t, 10, cfg.Database.MaxIdleConns)
			},
		},
		{
			name: "rate limit and redis configuration",
			envVars: map[string]string{
				"RATE_LIMIT_REQUESTS_PER_MINUTE": "30",
				"RATE_LIMIT_BURST":               "5",
				"REDIS_URL":                      "redis://localhost:6379/0",
				"CORS_ALLOWED_ORIGINS":           "https://tutor.example.com, ,https://admin.example.com",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
				assert.Equal(t, 5, cfg.RateLimit.Burst)
				assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
				assert.Equal(t, []string{"https://tutor.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
			},
		},
		{
			name: "observability configuration",
			envVars: map[string]string{
				"LOG_LEVEL":       "debug",
				"LOG_FORMAT":      "console",
				"METRICS_ENABLED": "false",
				"METRICS_PORT":    "9091",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Observability.LogLevel)
				assert.Equal(t, "console", cfg.Observability.LogFormat)
				assert.False(t, cfg.Observability.MetricsEnabled)
				assert.Equal(t, 9091, cfg.Observability.MetricsPort)
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "rate limit disabled ignores invalid limits",
			envVars: map[string]string{
				"RATE_LIMIT_ENABLED":             "false",
				"RATE_LIMIT_REQUESTS_PER_MINUTE": "0",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.RateLimit.Enabled)
			},
		},
		{
			name: "trusted proxies",
			envVars: map[string]string{
				"TRUSTED_PROXIES": "10.0.0.0/8, 192.168.1.10,fd00::/8",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.10", "fd00::/8"}, cfg.Server.TrustedProxies)
			},
		},
		{
			name: "invalid trusted proxy",
			envVars: map[string]string{
				"TRUSTED_PROXIES": "10.0.0.0/8,not-an-ip",
			},
			wantErr: true,
		},
		{
			name: "invalid rate limit",
			envVars: map[string]string{
				"RATE_LIMIT_BURST": "0",
			},
			wantErr: true,
		},
		{
			name: "invalid recorder workers",
			envVars: map[string]string{
				"SECURITY_LOG_RECORDER_WORKERS": "0",
			},
			wantErr: true,
		},
		{
			name: "invalid max body size",
			envVars: map[string]string{
				"SECURITY_LOG_MAX_BODY_BYTES": "-1",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Host: "localhost", User: "dev", Database: "tutoring"},
			SecurityLog: SecurityLogConfig{
				Header:          DefaultSecurityLogHeader,
				MaxBodyBytes:    1024,
				RecorderBuffer:  10,
				RecorderWorkers: 1,
			},
			Observability: ObservabilityConfig{LogLevel: "info"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing database", func(t *testing.T) {
		cfg := valid()
		cfg.Database = DatabaseConfig{}
		assert.ErrorContains(t, cfg.Validate(), "database configuration required")
	})

	t.Run("missing database user", func(t *testing.T) {
		cfg := valid()
		cfg.Database.User = ""
		assert.ErrorContains(t, cfg.Validate(), "database user is required")
	})

	t.Run("blank header", func(t *testing.T) {
		cfg := valid()
		cfg.SecurityLog.Header = "  "
		assert.ErrorContains(t, cfg.Validate(), "header name is required")
	})

	t.Run("missing log level", func(t *testing.T) {
		cfg := valid()
		cfg.Observability.LogLevel = ""
		assert.ErrorContains(t, cfg.Validate(), "log level is required")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "dev",
		Password: "pw",
		Database: "tutoring",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=localhost port=5432 user=dev password=pw dbname=tutoring sslmode=disable", cfg.DSN())
	assert.Equal(t, "host=localhost port=5432 database=tutoring", cfg.LogString())
	assert.NotContains(t, cfg.LogString(), "pw")
}

func TestServerConfig_TrustedProxyNets(t *testing.T) {
	cfg := ServerConfig{TrustedProxies: []string{"10.0.0.0/8", "192.168.1.10", "2001:db8::1"}}

	nets, err := cfg.TrustedProxyNets()
	require.NoError(t, err)
	require.Len(t, nets, 3)
	assert.Equal(t, "10.0.0.0/8", nets[0].String())
	assert.Equal(t, "192.168.1.10/32", nets[1].String())
	assert.Equal(t, "2001:db8::1/128", nets[2].String())

	_, err = (&ServerConfig{TrustedProxies: []string{"10.0.0.0/33"}}).TrustedProxyNets()
	assert.ErrorContains(t, err, "invalid trusted proxy")

	nets, err = (&ServerConfig{}).TrustedProxyNets()
	require.NoError(t, err)
	assert.Empty(t, nets)
}

func TestRateLimitConfig_WindowLimit(t *testing.T) {
	tests := []struct {
		name string
		cfg  RateLimitConfig
		want int
	}{
		{name: "rate above burst", cfg: RateLimitConfig{RequestsPerMinute: 120, Burst: 20}, want: 120},
		{name: "burst above rate", cfg: RateLimitConfig{RequestsPerMinute: 1, Burst: 5}, want: 5},
		{name: "equal", cfg: RateLimitConfig{RequestsPerMinute: 10, Burst: 10}, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.WindowLimit())
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", cfg.Address())
}
