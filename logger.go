package revadops

import "go.uber.org/zap"

// NewLogger builds a zap logger. format "json" gives the production encoder,
// anything else the development one. An unknown level falls back to info.
func NewLogger(level, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = lvl
	cfg.InitialFields = map[string]any{"service": "revadops"}

	return cfg.Build()
}
