package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
server:
  port: "8080"
weather_api:
  url: "https://api.example.com"
  timeout: "2s"
request:
  timeout: "5s"
cache:
  ttl: "5m"
reliability:
  retry_max_attempts: 3
  retry_base_delay: "100ms"
  retry_max_delay: "2s"
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`

// envVars are every variable Load reads; loadIn clears them so the host
// environment cannot leak into a test.
var envVars = []string{
	"ENV_NAME", "PORT", "WEATHER_API_KEY", "CACHE_BACKEND", "MEMCACHED_ADDRS",
	"STORAGE_BACKEND", "STORAGE_DIR", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"ALERT_CITY", "ALERT_COUNTRY",
}

// loadIn runs Load in a fresh directory holding files (paths relative to it).
// env entries with an empty value are unset.
func loadIn(t *testing.T, files, env map[string]string) (*Config, error) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	for k, v := range env {
		t.Setenv(k, v)
		if v == "" {
			os.Unsetenv(k)
		}
	}

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	t.Chdir(dir)
	return Load()
}

func withKey(extra map[string]string) map[string]string {
	env := map[string]string{"WEATHER_API_KEY": "test-key-1234567890"}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "no api key anywhere",
			files:   map[string]string{"config/dev.yaml": minimalYAML},
			wantErr: "WEATHER_API_KEY",
		},
		{
			name:    "missing env file",
			files:   map[string]string{"config/dev.yaml": minimalYAML},
			env:     withKey(map[string]string{"ENV_NAME": "staging"}),
			wantErr: "config file not found",
		},
		{
			name:    "invalid config yaml",
			files:   map[string]string{"config/dev.yaml": "not: valid: yaml: [[["},
			env:     withKey(nil),
			wantErr: "parse config file",
		},
		{
			name: "invalid secrets yaml",
			files: map[string]string{
				"config/dev.yaml":     minimalYAML,
				"config/secrets.yaml": "not valid: yaml: [[[",
			},
			wantErr: "parse secrets file",
		},
		{
			name:    "zero weather api timeout",
			files:   map[string]string{"config/dev.yaml": strings.Replace(minimalYAML, `timeout: "2s"`, `timeout: "0s"`, 1)},
			env:     withKey(nil),
			wantErr: "WEATHER_API_TIMEOUT",
		},
		{
			name:    "unknown storage backend",
			files:   map[string]string{"config/dev.yaml": minimalYAML},
			env:     withKey(map[string]string{"STORAGE_BACKEND": "sqlite"}),
			wantErr: "storage.backend",
		},
		{
			name:    "unknown cache backend",
			files:   map[string]string{"config/dev.yaml": minimalYAML},
			env:     withKey(map[string]string{"CACHE_BACKEND": "dynamo"}),
			wantErr: "cache.backend",
		},
		{
			name:    "non-numeric redis db",
			files:   map[string]string{"config/dev.yaml": minimalYAML},
			env:     withKey(map[string]string{"REDIS_DB": "two"}),
			wantErr: "REDIS_DB",
		},
		{
			name:    "negative stale ttl",
			files:   map[string]string{"config/dev.yaml": strings.Replace(minimalYAML, `ttl: "5m"`, "ttl: \"5m\"\n  stale_ttl: \"-1m\"", 1)},
			env:     withKey(nil),
			wantErr: "stale_ttl",
		},
		{
			name:    "negative sweep interval",
			files:   map[string]string{"config/dev.yaml": strings.Replace(minimalYAML, `ttl: "5m"`, "ttl: \"5m\"\n  sweep_interval: \"-10m\"", 1)},
			env:     withKey(nil),
			wantErr: "sweep_interval",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadIn(t, tt.files, tt.env)
			if err == nil {
				t.Fatalf("Load() = %+v, want error containing %q", cfg, tt.wantErr)
			}
			if cfg != nil {
				t.Errorf("Load() returned config alongside error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_APIKeySources(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		env   map[string]string
		want  string
	}{
		{
			name:  "secrets file",
			files: map[string]string{"config/secrets.yaml": "weather_api_key: key-from-secrets-file\n"},
			want:  "key-from-secrets-file",
		},
		{
			name:  "dotenv file",
			files: map[string]string{".env": "WEATHER_API_KEY=key-from-dotenv\n"},
			want:  "key-from-dotenv",
		},
		{
			name: "environment wins over dotenv and secrets",
			files: map[string]string{
				".env":                "WEATHER_API_KEY=key-from-dotenv\n",
				"config/secrets.yaml": "weather_api_key: key-from-secrets-file\n",
			},
			env:  map[string]string{"WEATHER_API_KEY": "key-from-env"},
			want: "key-from-env",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.files["config/dev.yaml"] = minimalYAML
			cfg, err := loadIn(t, tt.files, tt.env)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.WeatherAPIKey != tt.want {
				t.Errorf("WeatherAPIKey = %q, want %q", cfg.WeatherAPIKey, tt.want)
			}
		})
	}
}

func TestLoad_DurationFallbacks(t *testing.T) {
	yaml := strings.Replace(minimalYAML, `timeout: "2s"`, `timeout: ""`, 1)
	yaml = strings.Replace(yaml, `ttl: "5m"`, `ttl: "soon"`, 1)

	cfg, err := loadIn(t, map[string]string{"config/dev.yaml": yaml}, withKey(nil))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPITimeout != 2*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want 2s default for empty value", cfg.WeatherAPITimeout)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m default for unparseable value", cfg.CacheTTL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadIn(t, map[string]string{"config/dev.yaml": minimalYAML}, withKey(nil))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	checks := []struct {
		name      string
		got, want interface{}
	}{
		{"StorageBackend", cfg.StorageBackend, "memory"},
		{"StorageDir", cfg.StorageDir, "data"},
		{"CacheBackend", cfg.CacheBackend, "in_memory"},
		{"CoalesceEnabled", cfg.CoalesceEnabled, true},
		{"StaleCacheTTL", cfg.StaleCacheTTL, time.Hour},
		{"SweepInterval", cfg.SweepInterval, 10 * time.Minute},
		{"ArchiveAPIURL", cfg.ArchiveAPIURL, "https://archive-api.open-meteo.com"},
		{"ArchiveRetryAttempts", cfg.ArchiveRetryAttempts, 3},
		{"ArchiveBreakerFails", cfg.ArchiveBreakerFails, 5},
		{"AlertCity", cfg.AlertCity, "Paris"},
		{"AlertRefreshInterval", cfg.AlertRefreshInterval, 30 * time.Minute},
		{"WarmInterval", cfg.WarmInterval, 10 * time.Minute},
		{"FanOutLimit", cfg.FanOutLimit, 4},
		{"RedisPrefix", cfg.RedisPrefix, "agrimeteo:"},
		{"ShutdownInFlightTimeout", cfg.ShutdownInFlightTimeout, 10 * time.Second},
		{"DegradedRetryMax", cfg.DegradedRetryMax, 20 * time.Minute},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_LifecycleConfig(t *testing.T) {
	yaml := minimalYAML + `
lifecycle:
  overload_window: "30s"
  overload_threshold_pct: 90
  degraded_window: "60s"
  degraded_error_pct: 10
  degraded_retry_initial: "2m"
  degraded_retry_max: "15m"
`
	cfg, err := loadIn(t, map[string]string{"config/dev.yaml": yaml}, withKey(nil))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OverloadWindow != 30*time.Second || cfg.OverloadThresholdPct != 90 {
		t.Errorf("overload = %v / %d%%, want 30s / 90%%", cfg.OverloadWindow, cfg.OverloadThresholdPct)
	}
	if cfg.DegradedWindow != time.Minute || cfg.DegradedErrorPct != 10 {
		t.Errorf("degraded = %v / %d%%, want 1m / 10%%", cfg.DegradedWindow, cfg.DegradedErrorPct)
	}
	if cfg.DegradedRetryInitial != 2*time.Minute || cfg.DegradedRetryMax != 15*time.Minute {
		t.Errorf("retry = %v..%v, want 2m..15m", cfg.DegradedRetryInitial, cfg.DegradedRetryMax)
	}
}

func TestLoad_StorageAndScheduler(t *testing.T) {
	yaml := strings.Replace(minimalYAML, "cache:\n  ttl: \"5m\"\n", "", 1) + `
storage:
  backend: "redis"
  redis:
    db: 2
    prefix: "test:"
scheduler:
  alert_city: "Lyon"
  alert_country: "FR"
  alert_refresh_interval: "0s"
  warm_interval: "15m"
  warm_locations: ["Paris,FR", "Bordeaux"]
  fan_out_limit: 8
cache:
  ttl: "5m"
  stale_ttl: "0s"
  coalesce:
    enabled: false
`
	cfg, err := loadIn(t, map[string]string{
		"config/dev.yaml":     yaml,
		"config/secrets.yaml": "redis_password: s3cret\n",
	}, withKey(map[string]string{"REDIS_ADDR": "redis:6380"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StorageBackend != "redis" || cfg.RedisAddr != "redis:6380" || cfg.RedisDB != 2 || cfg.RedisPrefix != "test:" {
		t.Errorf("redis config = %q %q %d %q", cfg.StorageBackend, cfg.RedisAddr, cfg.RedisDB, cfg.RedisPrefix)
	}
	if cfg.RedisPassword != "s3cret" {
		t.Errorf("RedisPassword = %q, want value from secrets file", cfg.RedisPassword)
	}
	if cfg.AlertCity != "Lyon" || cfg.AlertCountry != "FR" {
		t.Errorf("alert location = %q,%q", cfg.AlertCity, cfg.AlertCountry)
	}
	if cfg.AlertRefreshInterval != 0 {
		t.Errorf("AlertRefreshInterval = %v, want 0 (disabled)", cfg.AlertRefreshInterval)
	}
	if cfg.WarmInterval != 15*time.Minute || len(cfg.WarmLocations) != 2 || cfg.FanOutLimit != 8 {
		t.Errorf("warm config = %v %v %d", cfg.WarmInterval, cfg.WarmLocations, cfg.FanOutLimit)
	}
	if cfg.StaleCacheTTL != 0 || cfg.CoalesceEnabled {
		t.Errorf("cache config stale=%v coalesce=%v, want disabled", cfg.StaleCacheTTL, cfg.CoalesceEnabled)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := loadIn(t, map[string]string{"config/dev.yaml": minimalYAML}, withKey(map[string]string{
		"PORT":            "9090",
		"CACHE_BACKEND":   "MEMCACHED",
		"STORAGE_BACKEND": "file",
		"STORAGE_DIR":     "/var/lib/agrimeteo",
		"ALERT_CITY":      "Nantes",
		"REDIS_DB":        "3",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %q, want lower-cased memcached", cfg.CacheBackend)
	}
	if cfg.StorageBackend != "file" || cfg.StorageDir != "/var/lib/agrimeteo" {
		t.Errorf("storage = %q %q", cfg.StorageBackend, cfg.StorageDir)
	}
	if cfg.AlertCity != "Nantes" || cfg.RedisDB != 3 {
		t.Errorf("AlertCity = %q, RedisDB = %d", cfg.AlertCity, cfg.RedisDB)
	}
}

// TestLoad_RepositoryConfig loads the checked-in config/dev.yaml.
func TestLoad_RepositoryConfig(t *testing.T) {
	root := findProjectRoot(t)
	data, err := os.ReadFile(filepath.Join(root, "config", "dev.yaml"))
	if err != nil {
		t.Fatalf("read dev.yaml: %v", err)
	}
	cfg, err := loadIn(t, map[string]string{"config/dev.yaml": string(data)}, withKey(nil))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIURL == "" || cfg.ServerPort == "" {
		t.Error("Load() did not populate config from config/dev.yaml")
	}
	if cfg.StorageBackend != "file" || len(cfg.TrackedLocations) == 0 {
		t.Errorf("dev.yaml: storage %q, tracked %v", cfg.StorageBackend, cfg.TrackedLocations)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}

func TestValidate_RaisesRequestTimeout(t *testing.T) {
	cfg := &Config{
		WeatherAPITimeout: 3 * time.Second,
		RequestTimeout:    2 * time.Second,
		CacheBackend:      "in_memory",
		StorageBackend:    "memory",
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("validate() error = %v", err)
	}
	if cfg.RequestTimeout != 4*time.Second {
		t.Errorf("RequestTimeout = %v, want 4s", cfg.RequestTimeout)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", " b ", "c"); got != "b" {
		t.Errorf("firstNonEmpty() = %q, want b", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Errorf("firstNonEmpty() = %q, want empty", got)
	}
}
