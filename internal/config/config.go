package config

import (
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ZilDuck/nft-marketplace/internal/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Env     string
	Network string
	Index   string
	Debug   bool
	LogPath string

	HttpPort           string
	ApiKeys            map[string]string
	MarketplaceAddress string
	OverpaymentPolicy  string

	Store    StoreConfig
	Registry RegistryConfig
	Payout   PayoutConfig

	ElasticSearch ElasticSearchConfig
	Aws           AwsConfig
	Sqs           SqsConfig
}

type StoreConfig struct {
	Driver string
	Path   string
}

type RegistryConfig struct {
	Url     string
	Timeout int
	Debug   bool
}

type PayoutConfig struct {
	Url       string
	AccessKey string
}

type AwsConfig struct {
	AccessKey string
	SecretKey string
	Token     string
	Region    string
}

type SqsConfig struct {
	QueueUrl string
	Enabled  bool
}

type ElasticSearchConfig struct {
	Enabled          bool
	Aws              bool
	Hosts            []string
	Sniff            bool
	HealthCheck      bool
	Debug            bool
	Username         string
	Password         string
	MappingDir       string
	BulkPersistCount int
	Refresh          string
}

func Init(app string) {
	if err := godotenv.Load(".env"); err != nil {
		zap.L().With(zap.Error(err)).Debug("No .env file loaded")
	}

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			zap.L().With(zap.Error(err), zap.String("file", file)).Fatal("Unable to read config file")
		}
	}

	initLogger(app)
}

func initLogger(app string) {
	log.NewLogger(app, Get().LogPath, Get().Debug)
}

func Get() *Config {
	return &Config{
		Env:                getString("ENV", "dev"),
		Network:            getString("NETWORK", "zilliqa"),
		Index:              getString("INDEX_NAME", "marketplace"),
		Debug:              getBool("DEBUG", false),
		LogPath:            getString("LOG_PATH", ""),
		HttpPort:           getString("HTTP_PORT", "8080"),
		ApiKeys:            getMap("API_KEYS", ",", ":"),
		MarketplaceAddress: getString("MARKETPLACE_ADDRESS", ""),
		OverpaymentPolicy:  getString("OVERPAYMENT_POLICY", "retain"),
		Store: StoreConfig{
			Driver: getString("STORE_DRIVER", "memory"),
			Path:   getString("STORE_PATH", "./var/marketplace.db"),
		},
		Registry: RegistryConfig{
			Url:     getString("REGISTRY_URL", ""),
			Timeout: getInt("REGISTRY_TIMEOUT", 30),
			Debug:   getBool("REGISTRY_DEBUG", false),
		},
		Payout: PayoutConfig{
			Url:       getString("PAYOUT_URL", ""),
			AccessKey: getString("PAYOUT_ACCESS_KEY", ""),
		},
		Aws: AwsConfig{
			AccessKey: getString("AWS_ACCESS_KEY_ID", ""),
			SecretKey: getString("AWS_SECRET_KEY_ID", ""),
			Token:     getString("AWS_TOKEN", ""),
			Region:    getString("AWS_REGION", "eu-west-1"),
		},
		Sqs: SqsConfig{
			QueueUrl: getString("SQS_QUEUE_URL", ""),
			Enabled:  getBool("SQS_ENABLED", false),
		},
		ElasticSearch: ElasticSearchConfig{
			Enabled:          getBool("ELASTIC_SEARCH_ENABLED", false),
			Aws:              getBool("ELASTIC_SEARCH_AWS", false),
			Hosts:            getSlice("ELASTIC_SEARCH_HOSTS", make([]string, 0), ","),
			Sniff:            getBool("ELASTIC_SEARCH_SNIFF", true),
			HealthCheck:      getBool("ELASTIC_SEARCH_HEALTH_CHECK", true),
			Debug:            getBool("ELASTIC_SEARCH_DEBUG", false),
			Username:         getString("ELASTIC_SEARCH_USERNAME", ""),
			Password:         getString("ELASTIC_SEARCH_PASSWORD", ""),
			MappingDir:       getString("ELASTIC_SEARCH_MAPPING_DIR", "./mappings"),
			BulkPersistCount: getInt("ELASTIC_SEARCH_BULK_PERSIST_COUNT", 300),
			Refresh:          getString("ELASTIC_SEARCH_REFRESH", "wait_for"),
		},
	}
}

// getString prefers the environment, then the optional config file.
func getString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	if viper.IsSet(key) {
		return viper.GetString(key)
	}

	return defaultValue
}

func getInt(key string, defaultValue int) int {
	valStr := getString(key, "")
	val, _, err := big.ParseFloat(valStr, 10, 0, big.ToNearestEven)
	if err != nil {
		return defaultValue
	}

	intVal, _ := val.Int64()
	return int(intVal)
}

func getBool(key string, defaultValue bool) bool {
	valStr := getString(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}

	return defaultValue
}

func getSlice(key string, defaultVal []string, sep string) []string {
	valStr := getString(key, "")
	if valStr == "" {
		return defaultVal
	}

	return strings.Split(valStr, sep)
}

// getMap parses "k1:v1,k2:v2". Malformed pairs are skipped.
func getMap(key string, sep string, kvSep string) map[string]string {
	result := make(map[string]string)
	for _, pair := range getSlice(key, nil, sep) {
		parts := strings.SplitN(strings.TrimSpace(pair), kvSep, 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		result[parts[0]] = parts[1]
	}

	return result
}
