package config

import "time"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Socket: SocketConfig{
			Path:         "/tmp/rst.sock",
			Permissions:  "0700",
			Blocking:     true,
			RemoveStale:  false,
			PollInterval: Duration{50 * time.Millisecond},
		},
		Protocol: ProtocolConfig{
			InterimFrames:   2,
			InterimDelay:    Duration{time.Second},
			MaxRequestBytes: 1 << 20,
		},
		Server: ServerConfig{ErrorPolicy: "fatal"},
		Health: HealthConfig{Enable: false},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}
