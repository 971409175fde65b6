package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

const defaultSecretKey = "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy"

type (
	ServerConfig struct {
		Address                   string
		Host                      string
		DebugAddress              string
		ShutdownTimeout           time.Duration
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		CORSAllowedOrigins        []string
		RateLimit                 float64 // requests per second per client IP on public write endpoints
		RateBurst                 int
		BodyLimit                 string
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite3
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
		MaxOpenConns  int
	}

	RedisConfig struct {
		URL        string
		CatalogTTL time.Duration
	}

	UploadsConfig struct {
		Dir string
		// BucketURL replaces Dir with a gocloud.dev blob bucket, e.g. mem:// or file:///var/media.
		BucketURL string
		BaseURL   string
		MaxSize   int64
	}

	Config struct {
		Env                       string // DEV (local; default), TEST, QA, PROD
		Build                     string
		AppName                   string
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmailAddress   string
		LogLevel                  string
		LogFormat                 string
		RollbarToken              string
		SendgridApiKey            string
		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Uploads  UploadsConfig
	}
)

// NewConfig loads the configuration from the environment (prefixed with $ENV) and from
// `config/.env.<env>` when that file exists.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	setDefaults(v, env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		AppName:                   v.GetString("appName"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmailAddress:   v.GetString("defaultFromEmail"),
		LogLevel:                  v.GetString("logLevel"),
		LogFormat:                 v.GetString("logFormat"),
		RollbarToken:              v.GetString("rollbarToken"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Address:                   v.GetString("server.address"),
			Host:                      v.GetString("server.host"),
			DebugAddress:              v.GetString("server.debugAddress"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			CORSAllowedOrigins:        splitList(v.GetString("server.corsAllowedOrigins")),
			RateLimit:                 v.GetFloat64("server.rateLimit"),
			RateBurst:                 v.GetInt("server.rateBurst"),
			BodyLimit:                 v.GetString("server.bodyLimit"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			Name:          v.GetString("database.name"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
		},
		Redis: RedisConfig{
			URL:        v.GetString("redis.url"),
			CatalogTTL: v.GetDuration("redis.catalogTTL"),
		},
		Uploads: UploadsConfig{
			Dir:       v.GetString("uploads.dir"),
			BucketURL: v.GetString("uploads.bucketURL"),
			BaseURL:   strings.TrimRight(v.GetString("uploads.baseURL"), "/"),
			MaxSize:   v.GetInt64("uploads.maxSize"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "CodeSens")
	v.SetDefault("secretKey", defaultSecretKey)
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "CodeSens <noreply@localhost>")
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", "text")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 20*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 15*time.Minute)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.corsAllowedOrigins", "http://localhost:3000")
	v.SetDefault("server.rateLimit", 1.0)
	v.SetDefault("server.rateBurst", 5)
	v.SetDefault("server.bodyLimit", "8M")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "codesens")
	v.SetDefault("database.password", "codesens")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.name", "codesens")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")
	v.SetDefault("database.maxOpenConns", 20)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.catalogTTL", 5*time.Minute)

	v.SetDefault("uploads.dir", filepath.Join(Getwd(), "media"))
	v.SetDefault("uploads.bucketURL", "")
	v.SetDefault("uploads.baseURL", "/media")
	v.SetDefault("uploads.maxSize", 5<<20)
}

// Validate checks the settings that must never keep their development values outside debug mode.
func (conf *Config) Validate() error {
	if conf.Debug {
		return nil
	}
	return vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.RollbarToken, "rollbarToken"),
		vala.StringNotEmpty(conf.SendgridApiKey, "sendgridApiKey"),
		vala.StringNotEmpty(conf.Database.Password, "database.password"),
		vala.GreaterThan(len(conf.SecretKey), 31, "len(secretKey)"),
		notDefault(conf.SecretKey, defaultSecretKey, "secretKey"),
		vala.GreaterThan(int(conf.Server.JWTExpirationDelta/time.Second), 0, "server.jwtExpirationDelta"),
	).Check()
}

// DefaultFromEmail parses DefaultFromEmailAddress; invalid values fall back to a bare noreply address.
func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.DefaultFromEmailAddress)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: "noreply@" + conf.Server.Host}
	}
	return *addr
}

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

func (db DatabaseConfig) String() string {
	return fmt.Sprintf("%s://%s@%s/%s", db.Engine, db.User, db.Address(), db.Name)
}

func notDefault(obtained, def, paramName string) vala.Checker {
	return func() (bool, string) {
		return obtained != def, fmt.Sprintf("Parameter must not keep its default value: %s", paramName)
	}
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
