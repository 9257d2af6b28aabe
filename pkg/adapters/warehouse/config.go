package warehouse

import (
	"os"
	"strconv"
	"sync"
)

// Config holds connection settings for any adapter. Fields that an adapter
// does not use are ignored.
type Config struct {
	Type     string `yaml:"type" env:"WAREHOUSE_TYPE" env-default:"postgres"`
	Host     string `yaml:"host" env:"WAREHOUSE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"WAREHOUSE_PORT"`
	User     string `yaml:"user" env:"WAREHOUSE_USER"`
	Password string `yaml:"-" env:"WAREHOUSE_PASSWORD"`
	Database string `yaml:"database" env:"WAREHOUSE_DATABASE"`
	Schema   string `yaml:"schema" env:"WAREHOUSE_SCHEMA"`
	SSLMode  string `yaml:"ssl_mode" env:"WAREHOUSE_SSL_MODE" env-default:"require"`

	// Path is the database file for sqlite.
	Path string `yaml:"path" env:"WAREHOUSE_PATH"`

	// SQL Server options.
	AuthMethod             string `yaml:"auth_method" env:"WAREHOUSE_AUTH_METHOD" env-default:"sql"`
	TenantID               string `yaml:"tenant_id" env:"WAREHOUSE_TENANT_ID"`
	ClientID               string `yaml:"client_id" env:"WAREHOUSE_CLIENT_ID"`
	Encrypt                bool   `yaml:"encrypt" env:"WAREHOUSE_ENCRYPT" env-default:"true"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate" env:"WAREHOUSE_TRUST_SERVER_CERTIFICATE"`
	ConnectionTimeout      int    `yaml:"connection_timeout" env:"WAREHOUSE_CONNECTION_TIMEOUT" env-default:"30"`
}

// Environment variable names handed to generated scripts.
const (
	EnvType     = "WAREHOUSE_TYPE"
	EnvHost     = "WAREHOUSE_HOST"
	EnvPort     = "WAREHOUSE_PORT"
	EnvUser     = "WAREHOUSE_USER"
	EnvPassword = "WAREHOUSE_PASSWORD"
	EnvDatabase = "WAREHOUSE_DATABASE"
	EnvSchema   = "WAREHOUSE_SCHEMA"
	EnvPath     = "WAREHOUSE_PATH"
)

// EnvNames lists the variables EnvVars may set, in a stable order.
var EnvNames = []string{EnvType, EnvHost, EnvPort, EnvUser, EnvPassword, EnvDatabase, EnvSchema, EnvPath}

// EnvVars renders the connection settings for a subprocess. Empty values
// are omitted.
func (c Config) EnvVars() []string {
	pairs := [][2]string{
		{EnvType, c.Type},
		{EnvHost, ResolveHost(c.Host)},
		{EnvUser, c.User},
		{EnvPassword, c.Password},
		{EnvDatabase, c.Database},
		{EnvSchema, c.Schema},
		{EnvPath, c.Path},
	}
	if c.Port > 0 {
		pairs = append(pairs, [2]string{EnvPort, strconv.Itoa(c.Port)})
	}

	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p[1] != "" {
			out = append(out, p[0]+"="+p[1])
		}
	}
	return out
}

var (
	inDockerOnce sync.Once
	inDocker     bool
)

func runningInDocker() bool {
	inDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		inDocker = err == nil
	})
	return inDocker
}

// ResolveHost maps localhost to host.docker.internal when running inside a
// container, so a warehouse on the host machine stays reachable.
func ResolveHost(host string) string {
	if !runningInDocker() {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}
