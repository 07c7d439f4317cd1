package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSecret = strings.Repeat("s", 32)
	testKey1   = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("1", 32)))
	testKey2   = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("2", 32)))
)

// requiredEnv sets the variables without defaults.
func requiredEnv(t *testing.T) {
	t.Setenv("SIGNING_SECRET", testSecret)
	t.Setenv("ENCRYPTION_KEYS", "1:"+testKey1+",2:"+testKey2)
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	requiredEnv(t)
	t.Setenv("ALLOWED_FILE_TYPES", "application/pdf, image/png")
	t.Setenv("MAX_FILE_SIZE", "2097152")
	t.Setenv("SESSION_TTL", "45m")
	t.Setenv("ADMIN_OVERRIDE", "true")

	cfg, err := load(nil, "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, []string{"application/pdf", "image/png"}, cfg.AllowedFileTypes)
	assert.Equal(t, int64(2<<20), cfg.MaxFileSize)
	assert.Equal(t, 45*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.AdminOverride)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, "lax", cfg.CookieSameSite)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 30*time.Second, cfg.IOTimeout)
	assert.Equal(t, uint64(3), cfg.StorageRetries)

	kr, err := cfg.Keyring()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), kr.Active())
}

func TestLoad_FileThenEnvThenFlags(t *testing.T) {
	requiredEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9000"
upload_dir: /srv/files
log_level: debug
storage_retries: 5
allowed_file_types:
  - application/pdf
`), 0o600))

	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := load([]string{"-c", path, "-a", ":9100", "-x", "ignored"}, "")
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.HTTPAddr, "flag beats file")
	assert.Equal(t, "/srv/files", cfg.UploadDir, "file beats default")
	assert.Equal(t, "warn", cfg.LogLevel, "env beats file")
	assert.Equal(t, uint64(5), cfg.StorageRetries)
	assert.Equal(t, []string{"application/pdf"}, cfg.AllowedFileTypes)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"SIGNING_SECRET="+testSecret+"\nENCRYPTION_KEYS="+testKey1+"\nUPLOAD_DIR=/from/dotenv\n"), 0o600))

	// Unset first so the values come from the file; t.Setenv restores them.
	for _, k := range []string{"SIGNING_SECRET", "ENCRYPTION_KEYS", "UPLOAD_DIR"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := load(nil, envFile)
	require.NoError(t, err)
	assert.Equal(t, "/from/dotenv", cfg.UploadDir)
	assert.Equal(t, testSecret, cfg.SigningSecret)
}

func TestLoad_MissingDotEnvIsFine(t *testing.T) {
	requiredEnv(t)
	_, err := load(nil, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestLoad_BadConfigFile(t *testing.T) {
	requiredEnv(t)
	_, err := load([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, "")
	assert.ErrorContains(t, err, "read config file")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		SigningSecret:     testSecret,
		EncryptionKeys:    testKey1,
		SessionTTL:        time.Hour,
		CookieSameSite:    "Strict",
		BcryptCost:        10,
		AllowedFileTypes:  []string{"application/pdf"},
		MaxFileSize:       1 << 20,
		UploadDir:         "uploads",
		StorageBackend:    "local",
		IOTimeout:         time.Second,
		RevocationBackend: "none",
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig(t).Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"short secret", func(c *Config) { c.SigningSecret = "short" }, "signing_secret"},
		{"no keys", func(c *Config) { c.EncryptionKeys = "" }, "encryption_keys"},
		{"bad key", func(c *Config) { c.EncryptionKeys = "1:abc" }, "encryption_keys"},
		{"bad same site", func(c *Config) { c.CookieSameSite = "none" }, "cookie_same_site"},
		{"bcrypt too low", func(c *Config) { c.BcryptCost = 2 }, "bcrypt_cost"},
		{"no file types", func(c *Config) { c.AllowedFileTypes = nil }, "allowed_file_types"},
		{"zero size", func(c *Config) { c.MaxFileSize = 0 }, "max_file_size"},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }, "session_ttl"},
		{"zero io timeout", func(c *Config) { c.IOTimeout = 0 }, "io_timeout"},
		{"unknown backend", func(c *Config) { c.StorageBackend = "ftp" }, "storage_backend"},
		{"s3 without bucket", func(c *Config) { c.StorageBackend = "s3"; c.S3Bucket = "" }, "s3_bucket"},
		{"local without dir", func(c *Config) { c.UploadDir = "" }, "upload_dir"},
		{"unknown revocation", func(c *Config) { c.RevocationBackend = "memcached" }, "revocation_backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig(t)
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}

func TestString_RedactsSecrets(t *testing.T) {
	c := validConfig(t)
	c.DatabaseDSN = "postgres://vault:hunter2@db:5432/vault"
	c.S3SecretKey = "s3-secret"
	c.RedisPassword = "redis-secret"

	s := c.String()
	for _, secret := range []string{testSecret, testKey1, "hunter2", "s3-secret", "redis-secret"} {
		assert.NotContains(t, s, secret)
	}
	assert.Contains(t, s, "postgres://vault:[redacted]@db:5432/vault")
}

func TestParseFlags(t *testing.T) {
	c := &Config{HTTPAddr: ":1", LogLevel: "info"}
	require.NoError(t, parseFlags(c, []string{"-a", ":2", "-l", "debug", "-d", "dsn", "-g", ":3", "-u", "/tmp/u", "--other", "x"}))

	want := &Config{HTTPAddr: ":2", GRPCAddr: ":3", DatabaseDSN: "dsn", UploadDir: "/tmp/u", LogLevel: "debug"}
	assert.Empty(t, cmp.Diff(want, c))
}

func TestLoadFile_IgnoresProcessFlags(t *testing.T) {
	requiredEnv(t)
	path := filepath.Join(t.TempDir(), "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upload_dir: /srv/ctl\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/ctl", cfg.UploadDir)

	cfg, err = LoadFile("")
	require.NoError(t, err)
	assert.NotEqual(t, "/srv/ctl", cfg.UploadDir)
}
