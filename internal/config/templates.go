package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# chanlun configuration
# Every key can be overridden from the environment, e.g. CHANLUN_ENGINE_MAX_LEVELS=3

[engine]
# Stroke separation: "strict" (4 merged bars, strict edge) or "wide" (3 merged bars)
stroke_mode = "strict"
# Segment algorithm: "v1" (feature sequence) or "v0" (three-stroke overlap)
segment_algo = "v1"
# Maximum recursion depth of the level stack
max_levels = 4
# MACD periods used for divergence force
macd_fast = 12
macd_slow = 26
macd_signal = 9

[logging]
# trace, debug, info, warn, error
level = "info"
console = true
json = false
file = false
# file_path = "~/.config/chanlun/logs/chanlun.log"
max_size = 100
max_backups = 7
max_age = 30

[store]
# SQLite database holding bars and events
# path = "~/.config/chanlun/chanlun.db"

[ledger]
# Append-only JSONL event ledger with rotation
enabled = false
# path = "~/.config/chanlun/ledger/events.jsonl"
max_size = 100
max_backups = 10
max_age = 90
compress = true

[kafka]
# Publish event envelopes to Kafka
enabled = false
brokers = ["localhost:9092"]
topic = "chanlun.events"
# none, one, all
required_acks = "one"
batch_timeout_ms = 50

[metrics]
# Expose Prometheus metrics on /metrics
enabled = false
listen = ":9108"
namespace = "chanlun"

[stream]
# Defaults for the stream identity when a command does not name one
symbol = ""
interval = "1m"
provenance = "local"
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
