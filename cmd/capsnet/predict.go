package main

import (
	"fmt"

	"capsnet/data"
	"capsnet/utils"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var threshold float64

var predictCmd = &cobra.Command{
	Use:   "predict IMAGE...",
	Short: "Score images as real or manipulated",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPredict,
}

func init() {
	predictCmd.Flags().Float64Var(&threshold, "threshold", 0.5, "score above which an image is reported as fake")
}

type scored struct {
	path  string
	score float64
}

func runPredict(cmd *cobra.Command, args []string) error {
	det, err := buildDetector(cmd)
	if err != nil {
		return err
	}
	stats := utils.NewTimingStats()
	det.SetTimingStats(stats)

	// One image per forward pass: the classifier reports batch element 0.
	results := make([]scored, 0, len(args))
	bar := progressbar.Default(int64(len(args)), "scoring")
	for _, path := range args {
		x, err := data.LoadBatch([]string{path}, imageSize)
		if err != nil {
			return err
		}
		pred, err := det.Forward(x)
		if err != nil {
			return errors.WithMessagef(err, "scoring %s", path)
		}
		results = append(results, scored{path: path, score: pred.Class[0]})
		if err := bar.Add(1); err != nil {
			klog.V(2).Infof("progress bar: %v", err)
		}
	}
	if err := bar.Finish(); err != nil {
		klog.V(2).Infof("progress bar: %v", err)
	}

	out := cmd.OutOrStdout()
	for _, r := range results {
		label := "real"
		if r.score > threshold {
			label = "fake"
		}
		fmt.Fprintf(out, "%-40s %.4f %s\n", r.path, r.score, label)
	}
	if showTiming {
		utils.PrintTimingStats(stats)
	}
	return nil
}
