package config

const (
	defaultConfigPath      = "~/.config/dstatus/configuration.toml"
	defaultRuntimeDir      = "~/.local/state/dstatus"
	defaultInterval        = 15
	defaultSocketPrefix    = "discord-ipc"
	defaultDialTimeout     = 2
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultLargeImage      = "default_large"
	defaultLargeText       = "Large Text"
	defaultSmallImage      = "default_small"
	defaultSmallText       = "Small Text"
	defaultPartySize       = 1
	defaultMaxPartySize    = 2
	defaultCountdownStart  = 3600
	maxButtons             = 2
	maxPresenceTextLength  = 128
	clientIDEnvironmentVar = "DSTATUS_CLIENT_ID"
)

// Default returns a Config populated with repository defaults. ClientID is
// left empty; it must come from the file or the environment.
func Default() Config {
	return Config{
		LargeImage:     defaultLargeImage,
		LargeText:      defaultLargeText,
		SmallImage:     defaultSmallImage,
		SmallText:      defaultSmallText,
		PartySize:      defaultPartySize,
		MaxPartySize:   defaultMaxPartySize,
		CountdownStart: defaultCountdownStart,
		Daemon: Daemon{
			IntervalSeconds: defaultInterval,
			RuntimeDir:      defaultRuntimeDir,
			WatchConfig:     true,
		},
		IPC: IPC{
			SocketPrefix:       defaultSocketPrefix,
			DialTimeoutSeconds: defaultDialTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
