package config

import (
	"path/filepath"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/ngld/mmpack/pkg/archive"
)

// Config describes all configuration options
type Config struct {
	Log struct {
		Level string `default:"info" usage:"Minimum log level (debug, info, warn, error)"`
		JSON  bool   `default:"false" usage:"Output JSONND instead of pretty console messages"`
	}
	Paths struct {
		Build   string `default:"build" usage:"Build output directory"`
		Tests   string `default:"tests" usage:"Test directory copied into the build directory"`
		Source  string `default:"src/cocaine-app" usage:"Application source directory"`
		Staging string `default:"debian/tmp" usage:"Staging directory receiving the source archive"`
		Rules   string `default:"debian/rules.star" usage:"Optional rules file"`
		Log     string `default:"debian/.mmpack.log" usage:"Records the hooks that already ran"`
	}
	Archive struct {
		Name   string `default:"mastermind.tar.gz" usage:"File name of the source archive"`
		Suffix string `default:".py" usage:"Only files ending in this suffix are archived"`
		Codec  string `usage:"Archive compression (gzip, xz, br, none). Detected from the name if empty."`
	}
	Python struct {
		Interpreter string `default:"python3" usage:"Interpreter used to run the test suite"`
	}
	Commands struct {
		Clean   string `default:"dh_auto_clean"`
		Build   string `default:"dh_auto_build -- --build-lib {build}"`
		Install string `default:"dh_auto_install"`
		// Replaces the bash-completion dh addon
		BashCompletion string `default:"dh_bash-completion"`
		BuildDeb       string `default:"dh_builddeb -- -Z{compression}"`
	}
	Test struct {
		Durations int  `default:"20" usage:"Number of slowest tests to report"`
		Skip      bool `default:"false" usage:"Skip the test hook during sequences"`
	}
	Install struct {
		BashCompletion bool `default:"true" usage:"Run dh_bash-completion after dh_auto_install"`
	}
	Deb struct {
		Compression string `default:"gzip" usage:"Compression passed to dpkg-deb (gzip, xz, zstd, none)"`
	}
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

var debCompressions = map[string]bool{
	"gzip": true,
	"xz":   true,
	"zstd": true,
	"none": true,
}

// Loader initializes an empty config object and returns a new Loader for this object.
// configFile is read if it exists; an empty string selects mmpack.toml in the project root.
func Loader(projectRoot, configFile string) (*Config, *aconfig.Loader) {
	if configFile == "" {
		configFile = filepath.Join(projectRoot, "mmpack.toml")
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "MMPACK",
		SkipFlags: true,
		Files:     []string{configFile},
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the configuration and validates it
func Load(projectRoot, configFile string) (*Config, error) {
	cfg, loader := Loader(projectRoot, configFile)
	err := loader.Load()
	if err != nil {
		return nil, eris.Wrap(err, "Failed to load config")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if !debCompressions[cfg.Deb.Compression] {
		return eris.Errorf(`Invalid value for deb.compression: %s (must be one of gzip, xz, zstd or none)`, cfg.Deb.Compression)
	}

	_, err := archive.ParseCodec(cfg.Archive.Codec, cfg.Archive.Name)
	if err != nil {
		return eris.Wrap(err, `Invalid value for archive.codec`)
	}

	if cfg.Test.Durations < 0 {
		return eris.Errorf(`Invalid value for test.durations: %d`, cfg.Test.Durations)
	}

	for name, value := range map[string]string{
		"paths.build":   cfg.Paths.Build,
		"paths.tests":   cfg.Paths.Tests,
		"paths.source":  cfg.Paths.Source,
		"paths.staging": cfg.Paths.Staging,
		"archive.name":  cfg.Archive.Name,
	} {
		if value == "" {
			return eris.Errorf(`%s must not be empty`, name)
		}
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}
