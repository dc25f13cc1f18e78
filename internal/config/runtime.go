package config

import (
	"os"
	"strconv"
)

type Runtime struct {
	HTTPAddr      string
	CacheMaxItems int
	SuiteWorkers  int
	ObsBuffer     int
}

func Load() Runtime {
	return Runtime{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		CacheMaxItems: getenvInt("TREE_CACHE_MAX_ITEMS", 1024, 1),
		SuiteWorkers:  getenvInt("SUITE_WORKERS", 0, 0),
		ObsBuffer:     getenvInt("ENGINE_OBS_BUFFER", 4096, 1),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback, min int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return fallback
	}
	return v
}
