package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-host/pkg/config"
)

const envPrefix = "CLUSO"

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "cluso-host",
		Short: "Host identity agent for a clustered orchestrator",
		Long: `cluso-host represents this machine inside the cluster. A leader
publishes the cluster id to the distributed store and runs periodic
constraint and liveliness reconciliation; a follower discovers the id and
follows changes to it.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (YAML)")
	flags.String("host-id", "", "host id")
	flags.String("mode", "", "operating mode: leader or follower")
	flags.String("cluster-id", "", "cluster id (authoritative on a leader)")
	flags.String("store", "", "distributed store backend: memory, redis or postgres")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("listen", "", "health and metrics listen address")

	for key, flag := range map[string]string{
		"config":        "config",
		"host_id":       "host-id",
		"mode":          "mode",
		"cluster_id":    "cluster-id",
		"store.backend": "store",
		"logging.level": "log-level",
		"http.listen":   "listen",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newRunCmd(v), newConfigCmd(v), newAttributesCmd(v))
	return root
}

// loadConfig layers defaults, the config file, CLUSO_* environment
// variables and flags, then validates the result
func loadConfig(v *viper.Viper) (config.Config, error) {
	cfg := config.Default()
	if err := setDefaults(v, cfg); err != nil {
		return cfg, err
	}

	v.SetEnvPrefix(envPrefix)
	// CLUSO_STORE_BACKEND for store.backend
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// setDefaults registers every key of cfg with viper so environment
// variables can override keys absent from the config file
func setDefaults(v *viper.Viper, cfg config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	for key, value := range flatten("", tree) {
		v.SetDefault(key, value)
	}
	return nil
}

func flatten(prefix string, tree map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

func newConfigCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}
