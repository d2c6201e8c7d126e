package util

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mdepdi/be-fast-cablo/pkg"
	"github.com/spf13/viper"
)

type Config struct {
	ORS      ORSConfig      `mapstructure:"ors"`
	Hybrid   HybridConfig   `mapstructure:"hybrid"`
	Stitcher StitcherConfig `mapstructure:"stitcher"`
	Overlap  OverlapConfig  `mapstructure:"overlap"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Data     DataConfig     `mapstructure:"data"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
}

type ORSConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxInFlight    int64         `mapstructure:"max_in_flight"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Burst          int           `mapstructure:"burst"`
	CacheSize      int           `mapstructure:"cache_size"`
	SnapRadiusM    float64       `mapstructure:"snap_radius_m"`
	AlternativeCnt int           `mapstructure:"alternative_target_count"`
}

type HybridConfig struct {
	KStandard         int     `mapstructure:"k_standard"`
	KProgressive      int     `mapstructure:"k_progressive"`
	CandidateRadiusM  float64 `mapstructure:"candidate_radius_m"`
	ImprovementFactor float64 `mapstructure:"improvement_factor"`
	ReachCutoffM      float64 `mapstructure:"reach_cutoff_m"`
	Fanout            int     `mapstructure:"fanout"`
}

type StitcherConfig struct {
	ExcludeFirst bool    `mapstructure:"exclude_first"`
	Threshold    float64 `mapstructure:"threshold"`
	Epsilon      float64 `mapstructure:"epsilon"`
}

type OverlapConfig struct {
	BufferHalfWidthM float64 `mapstructure:"buffer_half_width_m"`
}

type BatchConfig struct {
	Workers int    `mapstructure:"workers"`
	Mode    string `mapstructure:"mode"`
}

// DataConfig locates the base data of one island. Graph and infrastructure paths left empty
// are derived from Pulau, e.g. ./data/sulawesi_graph.graphml and ./data/fo_sulawesi.geojson.
type DataConfig struct {
	Pulau              string `mapstructure:"pulau"`
	GraphPath          string `mapstructure:"graph_path"`
	InfrastructurePath string `mapstructure:"infrastructure_path"`
	InfrastructureCRS  string `mapstructure:"infrastructure_crs"`
	OutputDir          string `mapstructure:"output_dir"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	BaseURL         string        `mapstructure:"base_url"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults() {
	viper.SetDefault("ors.base_url", "http://localhost:6080/ors/v2")
	viper.SetDefault("ors.timeout", "30s")
	viper.SetDefault("ors.max_in_flight", 8)
	viper.SetDefault("ors.rate_per_second", 20.0)
	viper.SetDefault("ors.burst", 8)
	viper.SetDefault("ors.cache_size", 1<<14)
	viper.SetDefault("ors.snap_radius_m", pkg.DEFAULT_SNAP_RADIUS_M)
	viper.SetDefault("ors.alternative_target_count", pkg.DEFAULT_ALTERNATIVE_TARGET_CNT)

	viper.SetDefault("hybrid.k_standard", pkg.DEFAULT_K_STANDARD)
	viper.SetDefault("hybrid.k_progressive", pkg.DEFAULT_K_PROGRESSIVE)
	viper.SetDefault("hybrid.candidate_radius_m", pkg.DEFAULT_CANDIDATE_RADIUS_M)
	viper.SetDefault("hybrid.improvement_factor", pkg.DEFAULT_IMPROVEMENT_FACTOR)
	viper.SetDefault("hybrid.reach_cutoff_m", pkg.DEFAULT_REACH_CUTOFF_M)
	viper.SetDefault("hybrid.fanout", 8)

	viper.SetDefault("stitcher.exclude_first", true)
	viper.SetDefault("stitcher.threshold", pkg.DEFAULT_CONNECT_THRESHOLD)
	viper.SetDefault("stitcher.epsilon", pkg.DEFAULT_CONNECT_EPSILON)

	viper.SetDefault("overlap.buffer_half_width_m", pkg.DEFAULT_BUFFER_HALF_WIDTH_M)

	viper.SetDefault("batch.workers", 4)
	viper.SetDefault("batch.mode", "hybrid")

	viper.SetDefault("data.pulau", "Sulawesi")
	viper.SetDefault("data.infrastructure_crs", "EPSG:4326")
	viper.SetDefault("data.output_dir", "./outputs")

	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.timeout", "1000s")
	viper.SetDefault("server.shutdown_timeout", "30s")
	viper.SetDefault("server.base_url", "http://localhost:8000")

	viper.SetDefault("store.path", "./data/lastmile.db")
}

// ReadConfig loads the config file at path (./data/config.yaml when empty).
// A missing file is not fatal, defaults and LASTMILE_* env vars still apply.
func ReadConfig(path string) (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix("LASTMILE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath("./data/")
	}

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("fatal error config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Data.resolvePaths()
	return &cfg, nil
}

func (d *DataConfig) resolvePaths() {
	island := strings.ToLower(strings.TrimSpace(d.Pulau))
	if island == "" {
		return
	}
	if d.GraphPath == "" {
		d.GraphPath = fmt.Sprintf("./data/%s_graph.graphml", island)
	}
	if d.InfrastructurePath == "" {
		d.InfrastructurePath = fmt.Sprintf("./data/fo_%s.geojson", island)
	}
}
