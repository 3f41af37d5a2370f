package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:       "~/.config/tempo",
			SQLiteFile: "tempo.db",
		},
		Timer: TimerConfig{
			TickIntervalMs:    1000,
			MinSessionSeconds: 5,
			DefaultCategory:   "work",
		},
		Limits: map[string]int{
			"work":  50,
			"study": 25,
			"break": 5,
		},
		Backup: BackupConfig{
			StaleAfterDays: 3,
			ExportDir:      ".",
		},
		Notifications: NotificationsConfig{
			Desktop:  true,
			Icon:     "alarm-symbolic",
			ExpireMs: 10000,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}
