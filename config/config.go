// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines the runner's flags and resolves them, together
// with WASMRUNNER_* environment variables and an optional config file,
// into a validated Config.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	log "github.com/inconshreveable/log15"

	"github.com/ava-labs/wasmrunner/checkpoint"
	"github.com/ava-labs/wasmrunner/extractor"
	"github.com/ava-labs/wasmrunner/follower"
	"github.com/ava-labs/wasmrunner/sandbox"
	"github.com/ava-labs/wasmrunner/tracing"
)

const (
	EnvPrefix = "WASMRUNNER"

	ConfigFileKey       = "config-file"
	RPCURLKey           = "rpc-url"
	RegistryAddressKey  = "registry-address"
	StartHeightKey      = "start-height"
	FollowWindowKey     = "follow-window"
	FollowMaxBatchKey   = "follow-max-batch"
	PollIntervalKey     = "poll-interval"
	LogLevelKey         = "log-level"
	LogFormatKey        = "log-format"
	ExecutionTimeoutKey = "execution-timeout"
	MemoryLimitKey      = "memory-limit-pages"
	SandboxFSMountKey   = "sandbox-fs-mount"
	SandboxClockKey     = "sandbox-clock"
	SandboxRandomKey    = "sandbox-random"
	SandboxStdoutKey    = "sandbox-stdout"
	TracingEndpointKey  = "tracing-endpoint"
	TracingInsecureKey  = "tracing-insecure"
	TracingSampleKey    = "tracing-sample-rate"
	DBTypeKey           = "db-type"
	DBDirKey            = "db-dir"
	PostgresURLKey      = "postgres-url"
	HTTPAddressKey      = "http-address"
	SandboxAPIKey       = "sandbox-api"
	DevKey              = "dev"

	LogFormatTerminal = "terminal"
	LogFormatLogfmt   = "logfmt"
	LogFormatJSON     = "json"
)

var (
	errInvalidRegistry  = errors.New("invalid registry address")
	errInvalidLogFormat = errors.New("invalid log format")
	errInvalidMount     = errors.New("invalid sandbox mount, expected <host dir>:<guest path>")
	errMissingRPCURL    = errors.New("missing node RPC URL")
	errMissingDBDir     = errors.New("leveldb store requires a directory")
	errMissingPostgres  = errors.New("postgres store requires a connection URL")
	errUnknownDBType    = errors.New("unknown checkpoint store type")
)

// Config is the resolved configuration of the runner.
type Config struct {
	RPCURL          string
	RegistryAddress common.Address

	Follower follower.Config

	LogLevel  log.Lvl
	LogFormat string

	Sandbox      sandbox.Config
	Capabilities sandbox.Capabilities

	Store checkpoint.StoreConfig

	Tracing tracing.Config

	HTTPAddress string
	SandboxAPI  bool
	Dev         bool
}

// BuildFlagSet returns the flags understood by the runner.
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("wasmrunner", pflag.ContinueOnError)

	fs.String(ConfigFileKey, "", "Optional config file (json, yaml or toml)")
	fs.String(RPCURLKey, "http://127.0.0.1:8545", "JSON-RPC endpoint of the node to follow")
	fs.String(RegistryAddressKey, extractor.DefaultRegistryAddress.Hex(), "Address of the registry contract whose logs carry payloads")
	fs.Uint64(StartHeightKey, 1, "First height to follow when no checkpoint exists")
	fs.Int(FollowWindowKey, follower.DefaultWindow, "Number of recent blocks kept to detect reorgs")
	fs.Int(FollowMaxBatchKey, follower.DefaultMaxBatch, "Maximum number of blocks per notification")
	fs.Duration(PollIntervalKey, follower.DefaultPollInterval, "Delay between polls of the node")
	fs.String(LogLevelKey, "info", "Log level (trace, debug, info, warn, error, crit)")
	fs.String(LogFormatKey, LogFormatTerminal, "Log format (terminal, logfmt, json)")
	fs.Duration(ExecutionTimeoutKey, 10*time.Second, "Wall clock budget of one payload run, 0 for unlimited")
	fs.Uint32(MemoryLimitKey, sandbox.DefaultMemoryLimitPages, "Maximum linear memory of a payload in 64 KiB pages")
	fs.StringSlice(SandboxFSMountKey, nil, "Read-only directory exposed to payloads, as <host dir>:<guest path>")
	fs.Bool(SandboxClockKey, false, "Expose the host clock to payloads")
	fs.Bool(SandboxRandomKey, false, "Expose the host random source to payloads")
	fs.Bool(SandboxStdoutKey, true, "Forward payload stdout and stderr to the runner's own")
	fs.String(TracingEndpointKey, "", "OTLP/HTTP collector (host:port) to export traces to, disabled if empty")
	fs.Bool(TracingInsecureKey, false, "Export traces over plain HTTP")
	fs.Float64(TracingSampleKey, 1, "Fraction of traces to export")
	fs.String(DBTypeKey, checkpoint.LevelDB, "Checkpoint store (leveldb, memdb, postgres)")
	fs.String(DBDirKey, "wasmrunner-db", "Directory of the leveldb checkpoint store")
	fs.String(PostgresURLKey, "", "Connection URL of the postgres checkpoint store")
	fs.String(HTTPAddressKey, "127.0.0.1:9650", "Address of the status API, disabled if empty")
	fs.Bool(SandboxAPIKey, false, "Serve the sandbox.execute method on the status API")
	fs.Bool(DevKey, false, "Development mode: in-memory store, debug logs, host clock and randomness")

	return fs
}

// NewViper binds [fs], the environment and the config file named by
// --config-file.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if file := v.GetString(ConfigFileKey); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}
	return v, nil
}

// Load validates the values held by [v].
func Load(v *viper.Viper) (*Config, error) {
	c := &Config{
		RPCURL: v.GetString(RPCURLKey),
		Follower: follower.Config{
			StartHeight:  v.GetUint64(StartHeightKey),
			Window:       v.GetInt(FollowWindowKey),
			MaxBatch:     v.GetInt(FollowMaxBatchKey),
			PollInterval: v.GetDuration(PollIntervalKey),
		},
		LogFormat: strings.ToLower(v.GetString(LogFormatKey)),
		Sandbox: sandbox.Config{
			Timeout:          v.GetDuration(ExecutionTimeoutKey),
			MemoryLimitPages: v.GetUint32(MemoryLimitKey),
		},
		Capabilities: sandbox.Capabilities{
			Clock:  v.GetBool(SandboxClockKey),
			Random: v.GetBool(SandboxRandomKey),
		},
		Store: checkpoint.StoreConfig{
			Type:        v.GetString(DBTypeKey),
			Dir:         v.GetString(DBDirKey),
			PostgresURL: v.GetString(PostgresURLKey),
		},
		Tracing: tracing.Config{
			Endpoint:   v.GetString(TracingEndpointKey),
			Insecure:   v.GetBool(TracingInsecureKey),
			SampleRate: v.GetFloat64(TracingSampleKey),
		},
		HTTPAddress: v.GetString(HTTPAddressKey),
		SandboxAPI:  v.GetBool(SandboxAPIKey),
		Dev:         v.GetBool(DevKey),
	}

	registry := v.GetString(RegistryAddressKey)
	if !common.IsHexAddress(registry) {
		return nil, fmt.Errorf("%w: %q", errInvalidRegistry, registry)
	}
	c.RegistryAddress = common.HexToAddress(registry)

	lvl, err := log.LvlFromString(v.GetString(LogLevelKey))
	if err != nil {
		return nil, err
	}
	c.LogLevel = lvl

	switch c.LogFormat {
	case LogFormatTerminal, LogFormatLogfmt, LogFormatJSON:
	default:
		return nil, fmt.Errorf("%w: %q", errInvalidLogFormat, c.LogFormat)
	}

	for _, mount := range v.GetStringSlice(SandboxFSMountKey) {
		hostDir, guestPath, ok := strings.Cut(mount, ":")
		if !ok || hostDir == "" || guestPath == "" {
			return nil, fmt.Errorf("%w: %q", errInvalidMount, mount)
		}
		c.Capabilities.Mounts = append(c.Capabilities.Mounts, sandbox.Mount{
			HostDir:   hostDir,
			GuestPath: guestPath,
		})
	}
	if v.GetBool(SandboxStdoutKey) {
		c.Capabilities.Stdout = os.Stdout
		c.Capabilities.Stderr = os.Stderr
	}

	if c.Dev {
		c.Store.Type = checkpoint.MemDB
		c.LogLevel = log.LvlDebug
		c.Capabilities.Clock = true
		c.Capabilities.Random = true
	}

	if c.RPCURL == "" {
		return nil, errMissingRPCURL
	}
	switch c.Store.Type {
	case checkpoint.MemDB:
	case checkpoint.LevelDB:
		if c.Store.Dir == "" {
			return nil, errMissingDBDir
		}
	case checkpoint.Postgres:
		if c.Store.PostgresURL == "" {
			return nil, errMissingPostgres
		}
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownDBType, c.Store.Type)
	}
	return c, nil
}

// LogHandler renders records at or above the configured level to [w] in
// the configured format.
func (c *Config) LogHandler(w io.Writer) log.Handler {
	var format log.Format
	switch c.LogFormat {
	case LogFormatJSON:
		format = log.JsonFormat()
	case LogFormatLogfmt:
		format = log.LogfmtFormat()
	default:
		format = log.TerminalFormat()
	}
	return log.LvlFilterHandler(c.LogLevel, log.StreamHandler(w, format))
}
