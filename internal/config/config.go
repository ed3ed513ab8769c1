// Package config loads the environment-variable configuration shared by
// the coordinator and presence-node binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Coordinator holds the settings the coordinator binary needs.
type Coordinator struct {
	Port        string
	VnodeCount  int
	RedisAddr   string
	RedisHost   string
	RedisPort   string
	LogLevel    string
}

// LoadCoordinator reads coordinator configuration from the environment.
func LoadCoordinator() Coordinator {
	host, port := splitRedisURL(getEnv("REDIS_URL", "localhost:6379"))
	return Coordinator{
		Port:       getEnv("COORDINATOR_PORT", "8080"),
		VnodeCount: getEnvInt("VNODE_COUNT", 1024),
		RedisHost:  host,
		RedisPort:  port,
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}
}

// Node holds the settings a presence-node process needs.
type Node struct {
	NodeID            string
	AssignedVnodes    []int
	WSPort            string
	VnodeCount        int
	KafkaBrokers      []string
	RedisHost         string
	RedisPort         string
	JWTSecret         string
	HeartbeatInterval time.Duration
	LogLevel          string
}

// LoadNode reads presence-node configuration from the environment. It
// returns an error if a required value is missing or malformed, so the
// caller can fail fast at startup rather than misbehave at runtime.
func LoadNode() (Node, error) {
	nodeID := os.Getenv("NODE_ID")
	if nodeID == "" {
		return Node{}, fmt.Errorf("NODE_ID is required")
	}

	vnodeCount := getEnvInt("VNODE_COUNT", 1024)

	vnodes, err := parseIntList(os.Getenv("ASSIGNED_VNODES"))
	if err != nil {
		return Node{}, fmt.Errorf("invalid ASSIGNED_VNODES: %w", err)
	}
	for _, v := range vnodes {
		if v < 0 || v >= vnodeCount {
			return Node{}, fmt.Errorf("ASSIGNED_VNODES contains %d, outside valid range [0, %d)", v, vnodeCount)
		}
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return Node{}, fmt.Errorf("JWT_SECRET is required")
	}

	brokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	host, port := splitRedisURL(getEnv("REDIS_URL", "localhost:6379"))

	heartbeatMs := getEnvInt("HEARTBEAT_INTERVAL", 30000)

	return Node{
		NodeID:            nodeID,
		AssignedVnodes:    vnodes,
		WSPort:            getEnv("WS_PORT", "8081"),
		VnodeCount:        vnodeCount,
		KafkaBrokers:      brokers,
		RedisHost:         host,
		RedisPort:         port,
		JWTSecret:         jwtSecret,
		HeartbeatInterval: time.Duration(heartbeatMs) * time.Millisecond,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// parseIntList parses a comma-separated list of ints. An empty string
// yields an empty, non-nil slice.
func parseIntList(s string) ([]int, error) {
	out := []int{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// splitRedisURL splits a "host:port" address. REDIS_URL is specified as a
// plain address rather than a redis:// URL in this deployment's env
// contract.
func splitRedisURL(addr string) (host, port string) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, "6379"
	}
	return addr[:idx], addr[idx+1:]
}
