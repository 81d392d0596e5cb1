package main

import (
	"fmt"

	"capsnet/data"
	"capsnet/nn"
	"capsnet/tensor"
	"capsnet/utils"

	"github.com/spf13/cobra"
)

var labelList string

var lossCmd = &cobra.Command{
	Use:   "loss IMAGE",
	Short: "Evaluate the capsule loss of one image against its labels",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoss,
}

func init() {
	lossCmd.Flags().StringVar(&labelList, "labels", "1", "one binary label per output class, e.g. \"1\" or \"0,1\"")
}

func runLoss(cmd *cobra.Command, args []string) error {
	labels, err := utils.ParseFloats(labelList)
	if err != nil {
		return err
	}
	det, err := buildDetector(cmd)
	if err != nil {
		return err
	}
	x, err := data.LoadBatch(args, imageSize)
	if err != nil {
		return err
	}
	pred, err := det.Forward(x)
	if err != nil {
		return err
	}
	loss, err := nn.CapsuleLoss{}.Forward(pred.Raw, tensor.NewWithData(labels))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scores %v\nloss %.6f\n", pred.Class, loss)
	return nil
}
