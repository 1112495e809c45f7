package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// InterviewTypes are the catalog values that get env bindings for their
// replica and persona; other types can still be mapped in the config file.
var InterviewTypes = []string{"technical", "behavioral", "mixed"}

type Replica struct {
	ReplicaID string
	PersonaID string
}

type Settings struct {
	Port     string
	LogLevel string

	PostgresURI  string
	RedisAddr    string
	StoreTimeout time.Duration

	DefaultQuotaMinutes int

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	TavusAPIKey          string
	TavusBaseURL         string
	TavusTimeout         time.Duration
	TavusMaxCallDuration int
	Replicas             map[string]Replica

	VertexProject  string
	VertexLocation string
	VertexModel    string

	MetricsNamespace string
	OTELEnabled      bool
	WorkerCount      int
	AllowedOrigins   []string
}

// Load reads .env, then an optional config file, then the environment.
// Environment values win over the file.
func Load(configFile string) (*Settings, error) {
	_ = godotenv.Load()
	return load(viper.New(), configFile)
}

func load(v *viper.Viper, configFile string) (*Settings, error) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("store_timeout", "10s")
	v.SetDefault("quota.default_minutes", 60)
	v.SetDefault("tavus.base_url", "https://tavusapi.com/v2")
	v.SetDefault("tavus.timeout", "30s")
	v.SetDefault("tavus.max_call_duration", 3600)
	v.SetDefault("vertex.location", "us-central1")
	v.SetDefault("vertex.model", "gemini-1.5-flash")
	v.SetDefault("metrics.namespace", "mockinterview")
	v.SetDefault("otel.enabled", false)
	v.SetDefault("worker.count", 4)

	binds := map[string][]string{
		"port":                    {"PORT"},
		"log_level":               {"LOG_LEVEL"},
		"postgres.uri":            {"POSTGRES_URI"},
		"redis.addr":              {"REDIS_ADDR", "REDIS_URI", "REDIS_URL"},
		"store_timeout":           {"STORE_TIMEOUT"},
		"quota.default_minutes":   {"QUOTA_DEFAULT_MINUTES"},
		"jwt.secret":              {"SUPABASE_JWT_SECRET"},
		"jwt.issuer":              {"SUPABASE_JWT_ISSUER"},
		"jwt.audience":            {"SUPABASE_JWT_AUDIENCE"},
		"tavus.api_key":           {"TAVUS_API_KEY"},
		"tavus.base_url":          {"TAVUS_BASE_URL"},
		"tavus.timeout":           {"TAVUS_TIMEOUT"},
		"tavus.max_call_duration": {"TAVUS_MAX_CALL_DURATION"},
		"vertex.project":          {"VERTEX_PROJECT"},
		"vertex.location":         {"VERTEX_LOCATION"},
		"vertex.model":            {"VERTEX_MODEL"},
		"metrics.namespace":       {"METRICS_NAMESPACE"},
		"otel.enabled":            {"OTEL_ENABLED"},
		"worker.count":            {"WORKER_COUNT"},
		"ws.allowed_origins":      {"WS_ALLOWED_ORIGINS"},
	}
	for _, t := range InterviewTypes {
		up := strings.ToUpper(t)
		binds["tavus.replicas."+t+".replica_id"] = []string{"TAVUS_REPLICA_" + up}
		binds["tavus.replicas."+t+".persona_id"] = []string{"TAVUS_PERSONA_" + up}
	}
	for key, envs := range binds {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	s := &Settings{
		Port:                 v.GetString("port"),
		LogLevel:             v.GetString("log_level"),
		PostgresURI:          v.GetString("postgres.uri"),
		RedisAddr:            v.GetString("redis.addr"),
		StoreTimeout:         v.GetDuration("store_timeout"),
		DefaultQuotaMinutes:  v.GetInt("quota.default_minutes"),
		JWTSecret:            v.GetString("jwt.secret"),
		JWTIssuer:            v.GetString("jwt.issuer"),
		JWTAudience:          v.GetString("jwt.audience"),
		TavusAPIKey:          strings.TrimSpace(v.GetString("tavus.api_key")),
		TavusBaseURL:         v.GetString("tavus.base_url"),
		TavusTimeout:         v.GetDuration("tavus.timeout"),
		TavusMaxCallDuration: v.GetInt("tavus.max_call_duration"),
		Replicas:             replicas(v),
		VertexProject:        v.GetString("vertex.project"),
		VertexLocation:       v.GetString("vertex.location"),
		VertexModel:          v.GetString("vertex.model"),
		MetricsNamespace:     v.GetString("metrics.namespace"),
		OTELEnabled:          v.GetBool("otel.enabled"),
		WorkerCount:          v.GetInt("worker.count"),
		AllowedOrigins:       splitList(v.GetString("ws.allowed_origins")),
	}
	if s.DefaultQuotaMinutes < 0 {
		return nil, errors.New("quota.default_minutes must be >= 0")
	}
	return s, nil
}

func replicas(v *viper.Viper) map[string]Replica {
	types := map[string]bool{}
	for _, t := range InterviewTypes {
		types[t] = true
	}
	for t := range v.GetStringMap("tavus.replicas") {
		types[strings.ToLower(t)] = true
	}

	out := map[string]Replica{}
	for t := range types {
		r := Replica{
			ReplicaID: strings.TrimSpace(v.GetString("tavus.replicas." + t + ".replica_id")),
			PersonaID: strings.TrimSpace(v.GetString("tavus.replicas." + t + ".persona_id")),
		}
		if r.ReplicaID != "" || r.PersonaID != "" {
			out[t] = r
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RequireServe checks what the HTTP API cannot start without.
func (s *Settings) RequireServe() error {
	var missing []string
	if s.PostgresURI == "" {
		missing = append(missing, "POSTGRES_URI")
	}
	if s.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR (or REDIS_URI/REDIS_URL)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s environment variable is not set", strings.Join(missing, ", "))
	}
	return nil
}
