package capsule

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"capsnet/nn"
	"capsnet/tensor"
	"capsnet/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackboneVGG, cfg.Backbone)
	assert.Equal(t, 5, cfg.NumCaps)
	assert.Equal(t, 1, cfg.NumClasses)
	assert.Equal(t, 8, cfg.CapsuleDim)
	assert.Equal(t, 4, cfg.OutputDim)
	assert.Equal(t, 2, cfg.RoutingIterations)
	assert.False(t, cfg.Random)
	assert.Zero(t, cfg.Dropout)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backbone", func(c *Config) { c.Backbone = "inception" }},
		{"capsules", func(c *Config) { c.NumCaps = 0 }},
		{"classes", func(c *Config) { c.NumClasses = -1 }},
		{"capsule dim", func(c *Config) { c.CapsuleDim = 0 }},
		{"output dim", func(c *Config) { c.OutputDim = 0 }},
		{"iterations", func(c *Config) { c.RoutingIterations = 0 }},
		{"dropout one", func(c *Config) { c.Dropout = 1 }},
		{"dropout negative", func(c *Config) { c.Dropout = -0.5 }},
		{"ring degree", func(c *Config) { c.EncryptedPriors, c.HELogN = true, 20 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backbone: resnet\nnum_caps: 3\ndropout: 0.2\ntraining: true\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, BackboneResNet, cfg.Backbone)
	assert.Equal(t, 3, cfg.NumCaps)
	assert.Equal(t, 0.2, cfg.Dropout)
	assert.True(t, cfg.Training)
	assert.Equal(t, 8, cfg.CapsuleDim, "unset keys keep their default")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	cfg, err = LoadConfig(empty)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	typo := filepath.Join(dir, "typo.yaml")
	require.NoError(t, os.WriteFile(typo, []byte("num_capsules: 3\n"), 0644))
	_, err = LoadConfig(typo)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("routing_iterations: 0\n"), 0644))
	_, err = LoadConfig(invalid)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestVggExtractor(t *testing.T) {
	for _, training := range []bool{false, true} {
		vgg := newVggExtractor(training, newInitializers(1))
		assert.Equal(t, 19, vgg.Children())

		out, err := vgg.Extract(randomInput(1, 2, 3, 16, 16))
		require.NoError(t, err)
		assert.Equal(t, []int{2, BackboneChannels, 2, 2}, out.Shape)
		assert.Equal(t, BackboneChannels, vgg.OutChannels())

		trainable := map[string]bool{}
		for _, p := range vgg.Params("extractor") {
			trainable[p.Name] = p.Trainable
		}
		assert.False(t, trainable["extractor.0.weight"])
		assert.False(t, trainable["extractor.7.weight"])
		assert.Equal(t, training, trainable["extractor.10.weight"])
		assert.Equal(t, training, trainable["extractor.16.bias"])
	}
}

func TestResNetExtractor(t *testing.T) {
	res := newResNetExtractor(true, newInitializers(2))
	assert.Equal(t, 8, res.Children())
	assert.Equal(t, 8, res.Frozen())

	out, err := res.Extract(randomInput(2, 1, 3, 32, 32))
	require.NoError(t, err)
	assert.Equal(t, []int{1, BackboneChannels, 4, 4}, out.Shape)

	for _, p := range res.Params("extractor") {
		assert.False(t, p.Trainable, p.Name)
	}

	_, err = res.Extract(tensor.New(1, 1, 32, 32))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func smallConfig(backbone string) Config {
	cfg := DefaultConfig()
	cfg.Backbone = backbone
	cfg.Seed = 3
	return cfg
}

func TestDetectorForward(t *testing.T) {
	det, err := NewDetector(smallConfig(BackboneVGG))
	require.NoError(t, err)
	stats := utils.NewTimingStats()
	det.SetTimingStats(stats)

	x := randomInput(3, 1, 3, 16, 16)
	first, err := det.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 1}, first.Raw.Shape)
	require.Len(t, first.Class, 1)
	assert.Greater(t, first.Class[0], 0.0)
	assert.Less(t, first.Class[0], 1.0)

	second, err := det.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, first.Raw.Data, second.Raw.Data)
	assert.Equal(t, 2, stats.Forwards)

	loss, err := nn.CapsuleLoss{}.Forward(first.Raw, tensor.NewWithData([]float64{1}))
	require.NoError(t, err)
	assert.Greater(t, loss, 0.0)
}

func TestDetectorBatchOfTwo(t *testing.T) {
	det, err := NewResNetCapsule(smallConfig(BackboneVGG))
	require.NoError(t, err)
	assert.Equal(t, BackboneResNet, det.Config.Backbone)

	pred, err := det.ForwardWith(randomInput(4, 2, 3, 32, 32), false, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 1}, pred.Raw.Shape)

	_, err = det.ForwardWith(randomInput(4, 2, 3, 32, 32), false, 1.5)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestDetectorParamsAndWeights(t *testing.T) {
	cfg := smallConfig(BackboneVGG)
	det, err := NewVggCapsule(cfg)
	require.NoError(t, err)

	named := det.NamedTensors()
	route, ok := named["capsule.routing_stats.route_weights"]
	require.True(t, ok)
	assert.Equal(t, []int{1, 5, 4, 8}, route.Shape)
	_, ok = named["capsule.fea_ext.capsules.4.0.weight"]
	assert.True(t, ok)
	for name := range named {
		assert.True(t, strings.HasPrefix(name, "extractor.") || strings.HasPrefix(name, "capsule."), name)
	}

	path := filepath.Join(t.TempDir(), "weights.json")
	require.NoError(t, det.SaveWeights(path))

	cfg.Seed = 99
	other, err := NewVggCapsule(cfg)
	require.NoError(t, err)
	x := randomInput(5, 1, 3, 16, 16)
	before, err := other.Forward(x)
	require.NoError(t, err)

	n, err := other.LoadWeights(path)
	require.NoError(t, err)
	assert.Equal(t, len(named), n)

	want, err := det.Forward(x)
	require.NoError(t, err)
	got, err := other.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, want.Raw.Data, got.Raw.Data)
	assert.NotEqual(t, before.Raw.Data, got.Raw.Data)
}

func TestDetectorEncryptedPriors(t *testing.T) {
	cfg := smallConfig(BackboneVGG)
	plain, err := NewDetector(cfg)
	require.NoError(t, err)
	cfg.EncryptedPriors = true
	encrypted, err := NewDetector(cfg)
	require.NoError(t, err)

	x := randomInput(6, 1, 3, 16, 16)
	want, err := plain.Forward(x)
	require.NoError(t, err)
	got, err := encrypted.Forward(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.Raw.Data, got.Raw.Data, 1e-3)
}

func TestNewDetectorRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RoutingIterations = -1
	_, err := NewDetector(cfg)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = NewCapsuleNet(cfg)
	assert.ErrorIs(t, err, ErrConfiguration)
}
