package capsule

import (
	"capsnet/utils"

	"github.com/pkg/errors"
)

// BackboneChannels is the channel depth every FeatureBackbone produces and
// every capsule head consumes.
const BackboneChannels = 256

// Backbone names accepted by Config.Backbone.
const (
	BackboneVGG    = "vgg"
	BackboneResNet = "resnet"
)

// Config holds the construction-time options of a capsule network. It is
// fixed once the network is built.
type Config struct {
	// Backbone selects the feature extractor: "vgg" or "resnet".
	Backbone string `yaml:"backbone"`
	// NumCaps is the number of primary capsule heads (in_caps).
	NumCaps int `yaml:"num_caps"`
	// NumClasses is the number of output capsules (out_caps).
	NumClasses int `yaml:"num_classes"`
	// CapsuleDim is the embedding length of each primary capsule (data_in).
	CapsuleDim int `yaml:"capsule_dim"`
	// OutputDim is the vector length of each output capsule (data_out).
	OutputDim int `yaml:"output_dim"`
	// RoutingIterations is the number of routing-by-agreement rounds.
	RoutingIterations int `yaml:"routing_iterations"`

	// Random adds N(0, 0.01²) noise to the route weights on every forward pass.
	Random bool `yaml:"random"`
	// Dropout is the probability of zeroing each prior vote, in [0, 1).
	Dropout float64 `yaml:"dropout"`
	// Training selects batch statistics in batch norms and leaves the late
	// backbone stages trainable. Otherwise the whole backbone is frozen.
	Training bool `yaml:"training"`

	// Seed drives weight initialization, noise and dropout.
	Seed uint64 `yaml:"seed"`
	// ParallelHeads evaluates capsule heads concurrently.
	ParallelHeads bool `yaml:"parallel_heads"`
	// EncryptedPriors computes prior votes under CKKS encryption.
	EncryptedPriors bool `yaml:"encrypted_priors"`
	// HELogN is the CKKS ring degree (log2) used for encrypted priors.
	HELogN int `yaml:"he_log_n"`
}

// DefaultConfig returns the standard configuration: VGG backbone, five
// capsules of length 8 routed into one output capsule of length 4 over two
// iterations.
func DefaultConfig() Config {
	return Config{
		Backbone:          BackboneVGG,
		NumCaps:           5,
		NumClasses:        1,
		CapsuleDim:        8,
		OutputDim:         4,
		RoutingIterations: 2,
		Seed:              1,
		ParallelHeads:     true,
		HELogN:            13,
	}
}

// Validate checks every option and returns an error wrapping ErrConfiguration.
func (c Config) Validate() error {
	switch {
	case c.Backbone != BackboneVGG && c.Backbone != BackboneResNet:
		return errors.Wrapf(ErrConfiguration, "unknown backbone %q (want %q or %q)", c.Backbone, BackboneVGG, BackboneResNet)
	case c.NumCaps <= 0:
		return errors.Wrapf(ErrConfiguration, "num_caps must be positive, got %d", c.NumCaps)
	case c.NumClasses <= 0:
		return errors.Wrapf(ErrConfiguration, "num_classes must be positive, got %d", c.NumClasses)
	case c.CapsuleDim <= 0:
		return errors.Wrapf(ErrConfiguration, "capsule_dim must be positive, got %d", c.CapsuleDim)
	case c.OutputDim <= 0:
		return errors.Wrapf(ErrConfiguration, "output_dim must be positive, got %d", c.OutputDim)
	case c.RoutingIterations <= 0:
		return errors.Wrapf(ErrConfiguration, "routing_iterations must be positive, got %d", c.RoutingIterations)
	case c.Dropout < 0 || c.Dropout >= 1:
		return errors.Wrapf(ErrConfiguration, "dropout must be in [0, 1), got %g", c.Dropout)
	case c.EncryptedPriors && (c.HELogN < 12 || c.HELogN > 16):
		return errors.Wrapf(ErrConfiguration, "he_log_n must be in [12, 16], got %d", c.HELogN)
	}
	return nil
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
// Keys absent from the file keep their default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := utils.LoadYAML(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.WithMessagef(err, "config %s", path)
	}
	return cfg, nil
}
