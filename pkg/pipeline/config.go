package pipeline

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/tessera/pkg/errors"
)

// Config is the on-disk TOML configuration. Every field is optional; unset
// fields leave the corresponding option alone.
//
//	input = "target.jpg"
//	processed_image_dir = "processed"
//	input_size = 40
//	repeat = 3
//
//	[cache]
//	redis_addr = "localhost:6379"
//
//	[s3]
//	bucket = "mosaics"
//	endpoint = "http://localhost:9000"
type Config struct {
	Input             *string  `toml:"input"`
	RawImageDir       *string  `toml:"raw_image_dir"`
	ProcessedImageDir *string  `toml:"processed_image_dir"`
	Output            *string  `toml:"output"`
	Exist             *bool    `toml:"exist"`
	InputSize         *int     `toml:"input_size"`
	OutputSize        *int     `toml:"output_size"`
	Repeat            *int     `toml:"repeat"`
	BlendFactor       *float64 `toml:"blend_factor"`
	Workers           *int     `toml:"workers"`

	Cache CacheConfig `toml:"cache"`
	S3    S3Config    `toml:"s3"`
}

// CacheConfig selects the preparation and tile cache backend.
type CacheConfig struct {
	Disabled  *bool   `toml:"disabled"`
	RedisAddr *string `toml:"redis_addr"`
	Dir       *string `toml:"dir"`
}

// S3Config mirrors storage.Config.
type S3Config struct {
	Bucket    *string `toml:"bucket"`
	Endpoint  *string `toml:"endpoint"`
	Region    *string `toml:"region"`
	Prefix    *string `toml:"prefix"`
	AccessKey *string `toml:"access_key"`
	SecretKey *string `toml:"secret_key"`
}

// LoadConfig reads a TOML configuration file. Unknown keys are rejected so
// that typos do not pass silently.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "config file %s", path)
		}
		return nil, err
	}
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "config %s: unknown key %q", path, undecoded[0].String())
	}
	return &cfg, nil
}

// Apply copies every set field into o, except those for which explicit
// reports true. Keys are the TOML key names ("input_size", "s3.bucket").
// A nil explicit applies everything.
func (c *Config) Apply(o *Options, explicit func(key string) bool) {
	if explicit == nil {
		explicit = func(string) bool { return false }
	}
	setString := func(key string, dst *string, v *string) {
		if v != nil && !explicit(key) {
			*dst = *v
		}
	}
	setInt := func(key string, dst *int, v *int) {
		if v != nil && !explicit(key) {
			*dst = *v
		}
	}

	setString("input", &o.Input, c.Input)
	setString("raw_image_dir", &o.RawImageDir, c.RawImageDir)
	setString("processed_image_dir", &o.ProcessedImageDir, c.ProcessedImageDir)
	setString("output", &o.Output, c.Output)
	if c.Exist != nil && !explicit("exist") {
		o.Exist = *c.Exist
	}
	setInt("input_size", &o.InputSize, c.InputSize)
	setInt("output_size", &o.OutputSize, c.OutputSize)
	setInt("repeat", &o.Repeat, c.Repeat)
	if c.BlendFactor != nil && !explicit("blend_factor") {
		o.BlendFactor = *c.BlendFactor
	}
	setInt("workers", &o.Workers, c.Workers)

	setString("s3.bucket", &o.Publish.Bucket, c.S3.Bucket)
	setString("s3.endpoint", &o.Publish.Endpoint, c.S3.Endpoint)
	setString("s3.region", &o.Publish.Region, c.S3.Region)
	setString("s3.prefix", &o.Publish.Prefix, c.S3.Prefix)
	setString("s3.access_key", &o.Publish.AccessKey, c.S3.AccessKey)
	setString("s3.secret_key", &o.Publish.SecretKey, c.S3.SecretKey)
}
