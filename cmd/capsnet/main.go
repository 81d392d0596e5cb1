// capsnet: capsule-network deepfake detector
package main

import (
	goflag "flag"
	"os"

	"capsnet/nn/capsule"
	"capsnet/utils"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	configFile  string
	weightsFile string
	backbone    string
	encrypted   bool
	seed        uint64
	imageSize   int
	showTiming  bool
)

var rootCmd = &cobra.Command{
	Use:           "capsnet",
	Short:         "Capsule-network detector for manipulated face images",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	fs := goflag.NewFlagSet("klog", goflag.ExitOnError)
	klog.InitFlags(fs)
	rootCmd.PersistentFlags().AddGoFlagSet(fs)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML model configuration")
	pf.StringVar(&weightsFile, "weights", "", "JSON weights file (random initialization if empty)")
	pf.StringVar(&backbone, "backbone", "", "override the configured backbone (vgg|resnet)")
	pf.BoolVar(&encrypted, "encrypted", false, "compute prior votes under CKKS encryption")
	pf.Uint64Var(&seed, "seed", 0, "override the configured seed")
	pf.IntVar(&imageSize, "size", 224, "side length images are cropped to")
	pf.BoolVar(&showTiming, "timing", false, "print per-stage timing statistics")

	rootCmd.AddCommand(predictCmd, summaryCmd, lossCmd)
}

// loadConfig reads --config (or the defaults) and applies flag overrides.
func loadConfig(cmd *cobra.Command) (capsule.Config, error) {
	cfg := capsule.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = capsule.LoadConfig(configFile); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("backbone") {
		cfg.Backbone = backbone
	}
	if flags.Changed("encrypted") {
		cfg.EncryptedPriors = encrypted
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	return cfg, cfg.Validate()
}

// buildDetector constructs the detector and loads --weights into it.
func buildDetector(cmd *cobra.Command) (*capsule.Detector, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	det, err := capsule.NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	if weightsFile != "" {
		if _, err := det.LoadWeights(weightsFile); err != nil {
			return nil, err
		}
	} else {
		klog.Warning("no weights file given, using random initialization")
	}
	return det, nil
}

func main() {
	defer klog.Flush()
	utils.Output = os.Stdout
	if err := rootCmd.Execute(); err != nil {
		klog.ErrorS(err, "capsnet failed")
		klog.Flush()
		os.Exit(1)
	}
}
