package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dinebot-sim/dinebot-sim/publish"
	"github.com/dinebot-sim/dinebot-sim/store"
)

// Env holds deployment settings. Values come from the process environment, after an
// optional .env file has been loaded into it.
type Env struct {
	DBDriver     string   // DINEBOT_DB_DRIVER: sqlite or postgres
	DBDSN        string   // DINEBOT_DB_DSN: empty disables run storage
	RedisAddr    string   // DINEBOT_REDIS_ADDR
	KnowledgeKey string   // DINEBOT_KNOWLEDGE_KEY: Redis list of rule documents
	DecisionURL  string   // DINEBOT_DECISION_URL: default endpoint for the http provider
	MQTTBroker   string   // DINEBOT_MQTT_BROKER, e.g. tcp://localhost:1883
	KafkaBrokers []string // DINEBOT_KAFKA_BROKERS, comma separated
	HTTPAddr     string   // DINEBOT_HTTP_ADDR
	APITokenHash string   // DINEBOT_API_TOKEN_HASH: bcrypt hash guarding mutating routes
}

// loadEnv reads path (a missing file is fine) and then the environment.
func loadEnv(path string) (Env, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return Env{}, fmt.Errorf("loading %s: %w", path, err)
			}
			logrus.Debugf("no %s file found (using environment variables)", path)
		}
	}
	return Env{
		DBDriver:     getEnv("DINEBOT_DB_DRIVER", "sqlite"),
		DBDSN:        os.Getenv("DINEBOT_DB_DSN"),
		RedisAddr:    os.Getenv("DINEBOT_REDIS_ADDR"),
		KnowledgeKey: getEnv("DINEBOT_KNOWLEDGE_KEY", "dinebot:knowledge"),
		DecisionURL:  os.Getenv("DINEBOT_DECISION_URL"),
		MQTTBroker:   os.Getenv("DINEBOT_MQTT_BROKER"),
		KafkaBrokers: splitList(os.Getenv("DINEBOT_KAFKA_BROKERS")),
		HTTPAddr:     getEnv("DINEBOT_HTTP_ADDR", ":8080"),
		APITokenHash: os.Getenv("DINEBOT_API_TOKEN_HASH"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// openStore returns nil without a DSN.
func (e Env) openStore() (*store.DB, error) {
	if e.DBDSN == "" {
		return nil, nil
	}
	db, err := store.Open(e.DBDriver, e.DBDSN)
	if err != nil {
		return nil, err
	}
	logrus.Infof("run store open (%s)", db.Driver())
	return db, nil
}

// redisClient returns nil without an address or when the server does not answer.
func (e Env) redisClient() redis.UniversalClient {
	if e.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: e.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.Warnf("redis not available at %s (%v), running without shared knowledge", e.RedisAddr, err)
		client.Close()
		return nil
	}
	logrus.Infof("redis connected (%s)", e.RedisAddr)
	return client
}

// messagingKind names the configured broker; Kafka wins when both are set.
func (e Env) messagingKind() (string, []string) {
	switch {
	case len(e.KafkaBrokers) > 0:
		return "kafka", e.KafkaBrokers
	case e.MQTTBroker != "":
		return "mqtt", []string{e.MQTTBroker}
	}
	return "", nil
}

// openPublisher returns nil when no broker is configured.
func (e Env) openPublisher() (*publish.Publisher, error) {
	kind, brokers := e.messagingKind()
	if kind == "" {
		return nil, nil
	}
	sink, err := publish.Open(kind, brokers, "dinebot-sim-"+uuid.NewString()[:8])
	if err != nil {
		return nil, err
	}
	return publish.NewPublisher(sink, publish.DefaultTopics(kind)), nil
}
