package cfg

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Bytes() []byte {
	return s.value
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Port           string
	Environment    string
	LogLevel       string
	ContextTimeout time.Duration
	AllowedOrigins []string
	TrustedProxies []string
	MetricsUser    string
	MetricsPass    Secret

	// snapshot viewer
	WireFormat     string
	MaxDepth       int
	SnapshotMaxAge time.Duration
	Fetch          FetchCfg

	// envelope cache
	LRUCacheSize  int
	RedisURL      string
	RedisTLS      bool
	RedisUsername string
	RedisPassword Secret
	RedisTimeout  time.Duration

	RateLimit          RateLimitCfg
	ClientHashRotation time.Duration

	// self-hosted paste provider
	PastesEnabled       bool
	DatabasePath        string
	DBMaxOpenConns      int
	DBMaxIdleConns      int
	DBQueryTimeout      time.Duration
	MaxPasteSize        int64
	MaxWorkerLoad       int
	WorkerPoolSize      int
	TTLPresets          []time.Duration
	DeletionTokenExpiry time.Duration
	TokenReplayTTL      time.Duration
	Argon2Time          uint32
	Argon2Memory        uint32
	Argon2Parallelism   uint8
	HasherWorkerCount   int
	Pepper              Secret
	PepperFromKMS       bool
	DEKCacheTTL         time.Duration
	KMS                 KMSCfg
}

type FetchCfg struct {
	Timeout      time.Duration
	MaxBytes     int64
	CacheTTL     time.Duration
	PastesDevURL string
	HastebinURL  string
	SelfPasteURL string
}

type RateLimitCfg struct {
	RPM               int
	Burst             int
	ConservativeLimit int
}

type KMSCfg struct {
	VaultAddr       string
	VaultToken      Secret
	VaultTokenFile  string
	VaultMountPath  string
	VaultKeyID      string
	VaultSecretPath string
	AWSRegion       string
	AWSKeyID        string
	LocalKey        Secret
	RequirePrimary  bool
	FailClosed      bool
	TokenSecretName string
}

// LoadDotEnv reads ENV_FILE, or ./.env when present. Variables already set
// in the environment win.
func LoadDotEnv() error {
	if path := os.Getenv("ENV_FILE"); path != "" {
		return errors.Wrapf(godotenv.Load(path), "load %s", path)
	}
	if _, err := os.Stat(".env"); err == nil {
		return errors.Wrap(godotenv.Load(), "load .env")
	}
	return nil
}

func Load() (*Cfg, error) {
	c := &Cfg{}
	var err error
	c.Port = getEnv("PORT", "8080")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	if c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	c.AllowedOrigins = getSlice("ALLOWED_ORIGINS", []string{})
	c.TrustedProxies = getSlice("TRUSTED_PROXIES", []string{})
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))

	c.WireFormat = getEnv("WIRE_FORMAT", "msgpack")
	if c.MaxDepth, err = getInt("MAX_DEPTH", 64); err != nil {
		return nil, err
	}
	if c.SnapshotMaxAge, err = getDuration("SNAPSHOT_MAX_AGE", 30*time.Second); err != nil {
		return nil, err
	}
	if c.Fetch.Timeout, err = getDuration("FETCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if c.Fetch.MaxBytes, err = getInt64("FETCH_MAX_BYTES", 8*1024*1024); err != nil {
		return nil, err
	}
	if c.Fetch.CacheTTL, err = getDuration("FETCH_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	c.Fetch.PastesDevURL = getEnv("PASTES_DEV_URL", "https://api.pastes.dev")
	c.Fetch.HastebinURL = getEnv("HASTEBIN_URL", "https://hastebin.com/raw")
	c.Fetch.SelfPasteURL = getEnv("SELF_PASTE_URL", "")

	if c.LRUCacheSize, err = getInt("LRU_CACHE_SIZE", 1000); err != nil {
		return nil, err
	}
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisTLS = getBool("REDIS_TLS", false)
	c.RedisUsername = getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	if c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}

	if c.RateLimit.RPM, err = getInt("RATE_LIMIT_RPM", 600); err != nil {
		return nil, err
	}
	if c.RateLimit.Burst, err = getInt("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}
	if c.RateLimit.ConservativeLimit, err = getInt("RATE_LIMIT_CONSERVATIVE", 60); err != nil {
		return nil, err
	}
	if c.ClientHashRotation, err = getDuration("CLIENT_HASH_ROTATION", time.Hour); err != nil {
		return nil, err
	}

	c.PastesEnabled = getBool("PASTES_ENABLED", true)
	c.DatabasePath = getEnv("DATABASE_PATH", "raisu.db")
	if c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 25); err != nil {
		return nil, err
	}
	if c.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return nil, err
	}
	if c.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if c.MaxPasteSize, err = getInt64("MAX_PASTE_SIZE", 1024*1024); err != nil {
		return nil, err
	}
	if c.MaxWorkerLoad, err = getInt("MAX_WORKER_LOAD", 100); err != nil {
		return nil, err
	}
	if c.WorkerPoolSize, err = getInt("WORKER_POOL_SIZE", 4); err != nil {
		return nil, err
	}
	if c.TTLPresets, err = getDurations("TTL_PRESETS", "10m,1h,24h,168h"); err != nil {
		return nil, err
	}
	if c.DeletionTokenExpiry, err = getDuration("DELETION_TOKEN_EXPIRY", 24*time.Hour); err != nil {
		return nil, err
	}
	if c.TokenReplayTTL, err = getDuration("TOKEN_REPLAY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if c.Argon2Time, err = getUint32("ARGON2_TIME", 2); err != nil {
		return nil, err
	}
	if c.Argon2Memory, err = getUint32("ARGON2_MEMORY", 64*1024); err != nil {
		return nil, err
	}
	p, err := getUint32("ARGON2_PARALLELISM", 2)
	if err != nil {
		return nil, err
	}
	if p > 255 {
		return nil, errors.New("ARGON2_PARALLELISM must be <= 255")
	}
	c.Argon2Parallelism = uint8(p)
	if c.HasherWorkerCount, err = getInt("HASHER_WORKER_COUNT", 2); err != nil {
		return nil, err
	}
	c.Pepper = NewSecret(getEnv("PEPPER", ""))
	c.PepperFromKMS = getBool("PEPPER_FROM_KMS", false)
	if c.DEKCacheTTL, err = getDuration("DEK_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	c.KMS = KMSCfg{
		VaultAddr:       getEnv("VAULT_ADDR", ""),
		VaultToken:      NewSecret(getEnv("VAULT_TOKEN", "")),
		VaultTokenFile:  getEnv("VAULT_TOKEN_FILE", ""),
		VaultMountPath:  getEnv("VAULT_MOUNT_PATH", "transit"),
		VaultKeyID:      getEnv("VAULT_KEY_ID", "raisu-master"),
		VaultSecretPath: getEnv("VAULT_SECRET_PATH", "secret/data/raisu"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		AWSKeyID:        getEnv("KMS_MASTER_KEY_ID", "alias/raisu-master"),
		LocalKey:        NewSecret(getEnv("KMS_LOCAL_KEY", "")),
		RequirePrimary:  getBool("KMS_REQUIRE_PRIMARY", false),
		FailClosed:      getBool("KMS_FAIL_CLOSED", true),
		TokenSecretName: getEnv("DELETION_TOKEN_SECRET_NAME", "DELETION_TOKEN_SECRET"),
	}
	return c, nil
}

func Validate(c *Cfg) error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	switch strings.ToLower(c.WireFormat) {
	case "msgpack", "cbor":
	default:
		return fmt.Errorf("WIRE_FORMAT must be msgpack or cbor, got %q", c.WireFormat)
	}
	if c.MaxDepth < 4 || c.MaxDepth > 1024 {
		return errors.New("MAX_DEPTH must be between 4 and 1024")
	}
	if c.SnapshotMaxAge < 0 {
		return errors.New("SNAPSHOT_MAX_AGE cannot be negative")
	}
	if c.Fetch.Timeout <= 0 {
		return errors.New("FETCH_TIMEOUT must be positive")
	}
	if c.Fetch.MaxBytes <= 0 || c.Fetch.MaxBytes > 64*1024*1024 {
		return errors.New("FETCH_MAX_BYTES must be between 1 and 64MB")
	}
	for name, raw := range map[string]string{
		"PASTES_DEV_URL": c.Fetch.PastesDevURL,
		"HASTEBIN_URL":   c.Fetch.HastebinURL,
		"SELF_PASTE_URL": c.Fetch.SelfPasteURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL", name)
		}
	}
	if c.LRUCacheSize <= 0 || c.LRUCacheSize > 100000 {
		return errors.New("LRU_CACHE_SIZE must be between 1 and 100000")
	}
	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
	}
	if c.RateLimit.RPM <= 0 || c.RateLimit.ConservativeLimit <= 0 {
		return errors.New("RATE_LIMIT_RPM and RATE_LIMIT_CONSERVATIVE must be positive")
	}
	if c.ClientHashRotation < 15*time.Minute || c.ClientHashRotation > 24*time.Hour {
		return errors.New("CLIENT_HASH_ROTATION must be between 15m and 24h")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else if net.ParseIP(proxy) == nil {
			return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
		}
	}
	if c.Environment == "production" && (c.MetricsUser == "" || c.MetricsPass.Value() == "") {
		return errors.New("METRICS_USER and METRICS_PASS are required in production")
	}
	if !c.PastesEnabled {
		return nil
	}
	return validatePastes(c)
}

func validatePastes(c *Cfg) error {
	if err := checkDatabasePath(c.DatabasePath); err != nil {
		return err
	}
	if c.MaxPasteSize <= 0 || c.MaxPasteSize > 10*1024*1024 {
		return errors.New("MAX_PASTE_SIZE must be between 1 and 10MB")
	}
	if c.DeletionTokenExpiry < time.Minute || c.DeletionTokenExpiry > 30*24*time.Hour {
		return errors.New("DELETION_TOKEN_EXPIRY must be between 1m and 30d")
	}
	if c.TokenReplayTTL < time.Minute || c.TokenReplayTTL > 30*24*time.Hour {
		return errors.New("TOKEN_REPLAY_TTL must be between 1m and 30d")
	}
	for _, d := range c.TTLPresets {
		if d < time.Minute || d > 30*24*time.Hour {
			return fmt.Errorf("TTL preset %s outside [1m, 720h]", d)
		}
	}
	if c.Argon2Time < 1 {
		return errors.New("ARGON2_TIME must be >= 1")
	}
	if c.Argon2Memory < 19*1024 {
		return errors.New("ARGON2_MEMORY must be >= 19456 KiB")
	}
	if c.Argon2Parallelism < 1 {
		return errors.New("ARGON2_PARALLELISM must be at least 1")
	}
	if !c.PepperFromKMS && len(c.Pepper.Value()) < 32 {
		return errors.New("PEPPER must be at least 32 bytes when PEPPER_FROM_KMS=false")
	}
	if c.DEKCacheTTL < time.Minute || c.DEKCacheTTL > time.Hour {
		return errors.New("DEK_CACHE_TTL must be between 1m and 1h")
	}
	if c.KMS.VaultAddr == "" && c.KMS.AWSRegion == "" && c.KMS.LocalKey.Value() == "" {
		return errors.New("pastes need a key provider: set VAULT_ADDR, AWS_REGION or KMS_LOCAL_KEY")
	}
	return nil
}

// checkDatabasePath keeps the store inside the working directory.
func checkDatabasePath(path string) error {
	if path == "" {
		return errors.New("DATABASE_PATH is required")
	}
	if path == ":memory:" {
		return nil
	}
	workDir, err := os.Getwd()
	if err != nil {
		return errors.Wrap(err, "get working directory")
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return errors.Wrap(err, "resolve working directory")
	}
	absDBPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "invalid DATABASE_PATH")
	}
	if !strings.HasPrefix(absDBPath, absWorkDir+string(filepath.Separator)) {
		return fmt.Errorf("DATABASE_PATH must be within working directory %s", absWorkDir)
	}
	return nil
}

func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
	c.Pepper.Wipe()
	c.KMS.VaultToken.Wipe()
	c.KMS.LocalKey.Wipe()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func getBool(key string, fallback bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getUint32(key string, fallback uint32) (uint32, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid uint32 for %s: %w", key, err)
	}
	return uint32(v), nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
func getDurations(key, fallback string) ([]time.Duration, error) {
	var out []time.Duration
	for _, s := range strings.Split(getEnv(key, fallback), ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q in %s: %w", s, key, err)
		}
		out = append(out, d)
	}
	return out, nil
}
func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	var result []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
