package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/anatolykoptev/go-imgsync"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix names the environment variables of the deployment, e.g.
// PANZER_IMGSYNC_BRIDGE_URL.
const envPrefix = "PANZER_IMGSYNC"

// loadSettings resolves flags, PANZER_IMGSYNC_* variables and the optional
// config file, in that order of precedence.
func loadSettings(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// archiveConfig builds the library config from resolved settings. Keys not
// registered as flags on cmd still resolve from env and the config file.
func archiveConfig(v *viper.Viper) *imgsync.Config {
	return &imgsync.Config{
		Root:           v.GetString("root"),
		CachePath:      v.GetString("cache"),
		Channel:        v.GetString("channel"),
		PageLimit:      v.GetInt("page-limit"),
		Lookback:       v.GetInt("lookback"),
		ScanBudget:     v.GetInt("scan-budget"),
		WindowDays:     v.GetInt("window-days"),
		ArchiveStartID: v.GetInt64("archive-start-id"),
		RefreshEntries: v.GetBool("refresh-entries"),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
