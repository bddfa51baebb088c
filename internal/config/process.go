package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"curveVolume/internal/model"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// StoreConfig selects the entity store.
type StoreConfig struct {
	Backend       string
	PGDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// KafkaConfig enables record publication when Brokers is set.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ProcessConfig holds configuration for replaying typed events.
type ProcessConfig struct {
	Chain         ChainConfig
	Store         StoreConfig
	Kafka         KafkaConfig
	Input         string
	BatchSize     int
	StateFile     string
	StateName     string
	RecomputeFrom string
	Concurrency   int
	MetricsAddr   string
	LogLevel      string
	Book          AddressBook
}

// SweepConfig holds configuration for snapshot sweeps outside replay.
type SweepConfig struct {
	Chain       ChainConfig
	Store       StoreConfig
	Kafka       KafkaConfig
	Schedule    string
	At          string
	Concurrency int
	MetricsAddr string
	LogLevel    string
	Book        AddressBook
}

func storeConfig(v *viper.Viper) StoreConfig {
	return StoreConfig{
		Backend:       strings.ToLower(v.GetString("store")),
		PGDSN:         v.GetString("pg-dsn"),
		RedisAddr:     v.GetString("redis-addr"),
		RedisPassword: v.GetString("redis-password"),
		RedisDB:       v.GetInt("redis-db"),
		RedisPrefix:   v.GetString("redis-prefix"),
	}
}

func kafkaConfig(v *viper.Viper) KafkaConfig {
	return KafkaConfig{
		Brokers: getStringSlice(v, "kafka-brokers"),
		Topic:   v.GetString("kafka-topic"),
	}
}

var storeDefaults = map[string]interface{}{
	"store":        StorePostgres,
	"redis-prefix": "curve",
	"kafka-topic":  "curve-records",
	"concurrency":  8,
}

func withDefaults(extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(storeDefaults)+len(extra))
	for k, v := range storeDefaults {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// LoadProcess merges config file, environment variables, and flags into ProcessConfig.
func LoadProcess(cfgFile string, flags *pflag.FlagSet) (ProcessConfig, error) {
	v, err := newViper(cfgFile, flags, withDefaults(map[string]interface{}{
		"batch-size": 500,
		"state-name": "processor",
	}))
	if err != nil {
		return ProcessConfig{}, err
	}
	book, err := LoadAddressBook(v)
	if err != nil {
		return ProcessConfig{}, err
	}

	cfg := ProcessConfig{
		Chain:         chainConfig(v),
		Store:         storeConfig(v),
		Kafka:         kafkaConfig(v),
		Input:         v.GetString("in"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		StateName:     v.GetString("state-name"),
		RecomputeFrom: v.GetString("recompute-from"),
		Concurrency:   v.GetInt("concurrency"),
		MetricsAddr:   v.GetString("metrics-addr"),
		LogLevel:      v.GetString("log-level"),
		Book:          book,
	}

	return cfg, nil
}

// LoadSweep merges config file, environment variables, and flags into SweepConfig.
func LoadSweep(cfgFile string, flags *pflag.FlagSet) (SweepConfig, error) {
	v, err := newViper(cfgFile, flags, withDefaults(nil))
	if err != nil {
		return SweepConfig{}, err
	}
	book, err := LoadAddressBook(v)
	if err != nil {
		return SweepConfig{}, err
	}

	cfg := SweepConfig{
		Chain:       chainConfig(v),
		Store:       storeConfig(v),
		Kafka:       kafkaConfig(v),
		Schedule:    v.GetString("schedule"),
		At:          v.GetString("at"),
		Concurrency: v.GetInt("concurrency"),
		MetricsAddr: v.GetString("metrics-addr"),
		LogLevel:    v.GetString("log-level"),
		Book:        book,
	}

	return cfg, nil
}

// ParsePosition parses "block" or "block:txIndex:logIndex". Empty input
// returns nil.
func ParsePosition(input string) (*model.Position, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	parts := strings.Split(input, ":")
	if len(parts) != 1 && len(parts) != 3 {
		return nil, fmt.Errorf("invalid position: %s", input)
	}
	values := make([]uint64, 3)
	for i, part := range parts {
		val, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid position: %s", input)
		}
		values[i] = val
	}
	return &model.Position{Block: values[0], TxIndex: values[1], LogIndex: values[2]}, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}

// MigrateConfig holds configuration for schema migrations.
type MigrateConfig struct {
	PGDSN    string
	Down     bool
	LogLevel string
}

// LoadMigrate merges config file, environment variables, and flags into MigrateConfig.
func LoadMigrate(cfgFile string, flags *pflag.FlagSet) (MigrateConfig, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return MigrateConfig{}, err
	}
	return MigrateConfig{
		PGDSN:    v.GetString("pg-dsn"),
		Down:     v.GetBool("down"),
		LogLevel: v.GetString("log-level"),
	}, nil
}
