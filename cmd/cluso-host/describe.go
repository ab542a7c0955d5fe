package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-host/pkg/host"
	"github.com/dd0wney/cluso-host/pkg/kvstore"
	"github.com/dd0wney/cluso-host/pkg/logging"
	"github.com/dd0wney/cluso-host/pkg/metrics"
	"github.com/dd0wney/cluso-host/pkg/orchestration"
)

// description is the YAML view of a host served on /attributes
type description struct {
	HostID       string         `yaml:"host_id"`
	ClusterID    string         `yaml:"cluster_id,omitempty"`
	Mode         string         `yaml:"mode"`
	Orchestrator string         `yaml:"orchestrator"`
	API          string         `yaml:"api"`
	PreferredNIC string         `yaml:"preferred_nic,omitempty"`
	Ready        bool           `yaml:"ready"`
	Attributes   map[string]any `yaml:"attributes"`
}

func describe(h *host.Host) description {
	return description{
		HostID:       h.HostID(),
		ClusterID:    h.ClusterID(),
		Mode:         h.OperatingMode(),
		Orchestrator: h.Orchestrator(),
		API:          h.APIEndpoint(),
		PreferredNIC: h.PreferredNIC(),
		Ready:        h.IsReady(),
		Attributes:   h.Attributes(),
	}
}

// newAttributesCmd prints the identity a host would start with, without
// contacting the store or the orchestrator
func newAttributesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "attributes",
		Short: "Print this host's identity and attributes as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			h, err := host.New(hostConfig(cfg), host.Dependencies{
				Store:   kvstore.NewMemory(),
				API:     orchestration.NewHTTPClient(cfg.OrchestratorAPI.IP, cfg.OrchestratorAPI.Port),
				Logger:  logging.NewNopLogger(),
				Metrics: metrics.NewRegistry(),
			})
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(describe(h))
		},
	}
}
