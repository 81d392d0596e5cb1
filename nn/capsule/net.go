package capsule

import (
	"time"

	"capsnet/core/ckkswrapper"
	"capsnet/nn/layers"
	"capsnet/tensor"
	"capsnet/utils"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CapsuleNet is the capsule part of the detector: primary capsule heads over
// a backbone feature map, routed into output capsules and classified.
type CapsuleNet struct {
	Features *FeatureExtractor
	Routing  *RoutingLayer

	stats *utils.TimingStats
}

// NewCapsuleNet builds the capsule heads and routing layer described by cfg
// with freshly initialized parameters.
func NewCapsuleNet(cfg Config) (*CapsuleNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newCapsuleNet(cfg, newInitializers(cfg.Seed))
}

func newCapsuleNet(cfg Config, init initializers) (*CapsuleNet, error) {
	opts := []RoutingOption{WithRouteWeights(init.route), WithSeed(cfg.Seed + 1)}
	if cfg.EncryptedPriors {
		he, err := ckkswrapper.NewHeContextWithLogN(cfg.HELogN)
		if err != nil {
			return nil, errors.Wrap(ErrConfiguration, err.Error())
		}
		enc, err := NewEncryptedPriors(he, cfg.CapsuleDim, cfg.OutputDim)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithPriorEvaluator(enc))
	}
	routing, err := NewRoutingLayer(cfg.NumCaps, cfg.NumClasses, cfg.CapsuleDim, cfg.OutputDim, cfg.RoutingIterations, opts...)
	if err != nil {
		return nil, err
	}
	return &CapsuleNet{
		Features: newFeatureExtractor(cfg.NumCaps, cfg.CapsuleDim, cfg.Training, cfg.ParallelHeads, init),
		Routing:  routing,
	}, nil
}

// SetTimingStats makes every forward pass record its stage durations.
func (n *CapsuleNet) SetTimingStats(stats *utils.TimingStats) { n.stats = stats }

func (n *CapsuleNet) record(stage string, start time.Time) {
	if n.stats != nil {
		n.stats.Record(stage, time.Since(start))
	}
}

// Forward classifies a [B, 256, H, W] feature map.
func (n *CapsuleNet) Forward(features *tensor.Tensor, random bool, dropout float64) (*Prediction, error) {
	start := time.Now()
	caps, err := n.Features.Forward(features)
	if err != nil {
		return nil, err
	}
	n.record(utils.StageHeads, start)

	start = time.Now()
	z, err := n.Routing.Forward(caps, random, dropout)
	if err != nil {
		return nil, err
	}
	n.record(utils.StageRouting, start)

	start = time.Now()
	pred, err := Classify(z)
	if err != nil {
		return nil, err
	}
	n.record(utils.StageClassifier, start)
	return pred, nil
}

// Params returns head parameters under "fea_ext" and the route weights under
// "routing_stats".
func (n *CapsuleNet) Params(prefix string) []layers.Param {
	params := n.Features.Params(layers.JoinName(prefix, "fea_ext"))
	return append(params, n.Routing.Params(layers.JoinName(prefix, "routing_stats"))...)
}

// Detector is the complete image classifier: a backbone followed by a
// CapsuleNet. The noise and dropout settings of Config apply to Forward.
type Detector struct {
	Config   Config
	Backbone FeatureBackbone
	Capsules *CapsuleNet

	stats *utils.TimingStats
}

// NewDetector builds and initializes the detector described by cfg.
// Parameters are drawn from a source seeded with cfg.Seed.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	init := newInitializers(cfg.Seed)
	backbone, err := newBackbone(cfg, init)
	if err != nil {
		return nil, err
	}
	caps, err := newCapsuleNet(cfg, init)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("built %s with %d capsules (%d→%d, dim %d→%d, %d routing iterations, encrypted priors: %v)",
		backbone.Tag(), cfg.NumCaps, cfg.NumCaps, cfg.NumClasses, cfg.CapsuleDim, cfg.OutputDim,
		cfg.RoutingIterations, cfg.EncryptedPriors)
	return &Detector{Config: cfg, Backbone: backbone, Capsules: caps}, nil
}

// NewVggCapsule builds a detector on the VGG-19 backbone.
func NewVggCapsule(cfg Config) (*Detector, error) {
	cfg.Backbone = BackboneVGG
	return NewDetector(cfg)
}

// NewResNetCapsule builds a detector on the ResNet-50 backbone.
func NewResNetCapsule(cfg Config) (*Detector, error) {
	cfg.Backbone = BackboneResNet
	return NewDetector(cfg)
}

// SetTimingStats makes every forward pass record its stage durations.
func (d *Detector) SetTimingStats(stats *utils.TimingStats) {
	d.stats = stats
	d.Capsules.SetTimingStats(stats)
}

// Forward classifies an image batch [B, 3, H, W] with the configured noise
// and dropout.
func (d *Detector) Forward(image *tensor.Tensor) (*Prediction, error) {
	return d.ForwardWith(image, d.Config.Random, d.Config.Dropout)
}

// ForwardWith classifies an image batch with explicit noise and dropout.
func (d *Detector) ForwardWith(image *tensor.Tensor, random bool, dropout float64) (*Prediction, error) {
	begin := time.Now()
	features, err := d.Backbone.Extract(image)
	if err != nil {
		return nil, err
	}
	if d.stats != nil {
		d.stats.Record(utils.StageBackbone, time.Since(begin))
	}
	klog.V(1).Infof("backbone %v → %v", image.Shape, features.Shape)

	pred, err := d.Capsules.Forward(features, random, dropout)
	if err != nil {
		return nil, err
	}
	if d.stats != nil {
		d.stats.RecordForward(time.Since(begin))
	}
	return pred, nil
}

// Params lists every parameter: backbone under "extractor", the capsule
// network under "capsule".
func (d *Detector) Params() []layers.Param {
	params := d.Backbone.Params("extractor")
	return append(params, d.Capsules.Params("capsule")...)
}

// NamedTensors maps parameter names to their tensors.
func (d *Detector) NamedTensors() map[string]*tensor.Tensor {
	params := d.Params()
	named := make(map[string]*tensor.Tensor, len(params))
	for _, p := range params {
		named[p.Name] = p.Value
	}
	return named
}

// LoadWeights overwrites parameters from a weight file and returns how many
// tensors were set.
func (d *Detector) LoadWeights(path string) (int, error) {
	w, err := utils.LoadWeights(path)
	if err != nil {
		return 0, err
	}
	n, err := utils.ApplyWeights(w, d.NamedTensors())
	if err != nil {
		return 0, errors.WithMessagef(err, "applying %s", path)
	}
	klog.V(1).Infof("loaded %d tensors from %s", n, path)
	return n, nil
}

// SaveWeights writes every parameter to path.
func (d *Detector) SaveWeights(path string) error {
	return utils.SaveWeights(path, utils.CollectWeights(d.NamedTensors()))
}
