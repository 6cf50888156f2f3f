package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const DATABASE_TYPE = "CFLOW_DATABASE_TYPE"
const DATABASE_URL = "CFLOW_DATABASE_URL"
const DATABASE_SQLLITE_FILE_NAME = "CFLOW_DATABASE_SQLLITE_FILE_NAME"
const ENGINE_SERVER_WEB_PORT = "CFLOW_ENGINE_SERVER_WEB_PORT"
const ENGINE_CHECK_DB_INTERVAL = "CFLOW_ENGINE_CHECK_DB_INTERVAL"
const ENGINE_BATCH_SIZE = "CFLOW_ENGINE_BATCH_SIZE"             //number of due records to pull from the ledger at a time
const ENGINE_WORKER_POOL_SIZE = "CFLOW_ENGINE_WORKER_POOL_SIZE" //number of concurrent dispatches per process
const ENGINE_CLAIM_TIMEOUT = "CFLOW_ENGINE_CLAIM_TIMEOUT"       //claims older than this are handed back to the ledger
const ENGINE_REPAIR_INTERVAL = "CFLOW_ENGINE_REPAIR_INTERVAL"
const ENGINE_RESOLVE_SCHEDULE = "CFLOW_ENGINE_RESOLVE_SCHEDULE" //cron spec for re-resolving pending records
const RETRY_BACKOFF_BASE = "CFLOW_RETRY_BACKOFF_BASE"
const RETRY_BACKOFF_MAX = "CFLOW_RETRY_BACKOFF_MAX"
const DEFAULT_TIMEZONE = "CFLOW_DEFAULT_TIMEZONE"
const WORKER_NAME = "CFLOW_WORKER_NAME"
const API_KEY = "CFLOW_API_KEY"
const WEBHOOK_SECRET = "CFLOW_WEBHOOK_SECRET"
const DELIVERY_URL = "CFLOW_DELIVERY_URL"
const DOCUMENT_URL = "CFLOW_DOCUMENT_URL"
const SERVICE_URL = "CFLOW_SERVICE_URL"
const CHANNEL_TIMEOUT = "CFLOW_CHANNEL_TIMEOUT"
const WEBHOOK_TIMEOUT = "CFLOW_WEBHOOK_TIMEOUT"
const DOCUMENT_TIMEOUT = "CFLOW_DOCUMENT_TIMEOUT"
const REDIS_URL = "CFLOW_REDIS_URL"
const IDEMPOTENCY_TTL = "CFLOW_IDEMPOTENCY_TTL"
const KAFKA_BROKERS = "CFLOW_KAFKA_BROKERS"
const KAFKA_CONSUMER_GROUP = "CFLOW_KAFKA_CONSUMER_GROUP"
const SERVICE_API_KEY = "CFLOW_SERVICE_API_KEY" //sent as X-API-Key to the delivery, document and service endpoints
const LOG_LEVEL = "CFLOW_LOG_LEVEL"
const WEB_SESSION_EXPIRY_HOURS = "CFLOW_WEB_SESSION_EXPIRY_HOURS"

const DATABASE_TYPE_POSTGRES = "POSTGRES"
const DATABASE_TYPE_MYSQL = "MYSQL"
const DATABASE_TYPE_SQLLITE = "SQLLITE"

var defaults = map[string]string{
	ENGINE_CHECK_DB_INTERVAL:   "5s",
	ENGINE_BATCH_SIZE:          "25",
	ENGINE_WORKER_POOL_SIZE:    "5",
	ENGINE_CLAIM_TIMEOUT:       "10m",
	ENGINE_REPAIR_INTERVAL:     "60s",
	ENGINE_RESOLVE_SCHEDULE:    "@every 1m",
	RETRY_BACKOFF_BASE:         "30s",
	RETRY_BACKOFF_MAX:          "1h",
	DEFAULT_TIMEZONE:           "UTC",
	ENGINE_SERVER_WEB_PORT:     "8080",
	DATABASE_SQLLITE_FILE_NAME: "./courseflow.db",
	CHANNEL_TIMEOUT:            "15s",
	WEBHOOK_TIMEOUT:            "10s",
	DOCUMENT_TIMEOUT:           "60s",
	IDEMPOTENCY_TTL:            "720h",
	LOG_LEVEL:                  "info",
	KAFKA_CONSUMER_GROUP:       "courseflow",
	WEB_SESSION_EXPIRY_HOURS:   "12",
}

func GetSystemSettingInteger(settingKey string) int {
	val := GetSystemSettingString(settingKey)
	if val != "" {
		intValue, _ := strconv.Atoi(val)
		return intValue
	}
	return 0
}

// GetSystemSettingDuration parses the setting as a time.Duration, falling back
// to the default when the configured value does not parse.
func GetSystemSettingDuration(settingKey string) time.Duration {
	if d, err := time.ParseDuration(GetSystemSettingString(settingKey)); err == nil {
		return d
	}
	d, _ := time.ParseDuration(defaults[settingKey])
	return d
}

// GetSystemSettingList splits a comma separated setting, dropping empty entries.
func GetSystemSettingList(settingKey string) []string {
	var out []string
	for _, v := range strings.Split(GetSystemSettingString(settingKey), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func GetSystemSettingString(settingKey string) string {
	val := os.Getenv(settingKey)
	if val != "" {
		return val
	}
	return defaults[settingKey]
}
