package observability

import (
	"strings"

	"github.com/Franc-dev/donate-artist/internal/config"
)

const defaultSamplingRatio = 0.1

// Config is the normalized view of the telemetry settings shared by the
// logger, tracer and meter providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	t := cfg.Telemetry
	return Config{
		ServiceName:          orDefault(cfg.AppName, "donate-artist"),
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             strings.ToLower(orDefault(t.LogLevel, "info")),
		LogFormat:            strings.ToLower(orDefault(t.LogFormat, "json")),
		OtelEnabled:          t.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(t.OTLPEndpoint),
		OtelExporterProtocol: normalizeProtocol(t.OTLPProtocol),
		OtelSamplingRatio:    clampRatio(t.SamplingRatio),
	}
}

// Debug turns on verbose request logs, stack traces and gin debug mode.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func orDefault(value, def string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return def
}

// normalizeProtocol leaves unknown values intact so exporter setup rejects them.
func normalizeProtocol(protocol string) string {
	switch protocol = strings.ToLower(strings.TrimSpace(protocol)); protocol {
	case "":
		return "grpc"
	case "http/protobuf":
		return "http"
	default:
		return protocol
	}
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio <= 0:
		return defaultSamplingRatio
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}
