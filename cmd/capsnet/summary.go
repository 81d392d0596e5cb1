package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the model structure and parameter counts",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

type group struct {
	trainable, frozen int
}

func runSummary(cmd *cobra.Command, _ []string) error {
	det, err := buildDetector(cmd)
	if err != nil {
		return err
	}

	groups := map[string]*group{}
	total := 0
	for _, p := range det.Params() {
		parts := strings.SplitN(p.Name, ".", 3)
		key := parts[0]
		if len(parts) > 1 {
			key += "." + parts[1]
		}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		n := p.Value.Size()
		if p.Trainable {
			g.trainable += n
		} else {
			g.frozen += n
		}
		total += n
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := cmd.OutOrStdout()
	cfg := det.Config
	fmt.Fprintf(out, "%s\n", det.Backbone.Tag())
	fmt.Fprintf(out, "%d capsules of %d → %d outputs of %d, %d routing iterations\n",
		cfg.NumCaps, cfg.CapsuleDim, cfg.NumClasses, cfg.OutputDim, cfg.RoutingIterations)
	fmt.Fprintf(out, "%s\n\n", det.Capsules.Routing.Tag())
	fmt.Fprintf(out, "%-28s %14s %14s\n", "group", "trainable", "frozen")
	for _, k := range keys {
		g := groups[k]
		fmt.Fprintf(out, "%-28s %14s %14s\n", k, humanize.Comma(int64(g.trainable)), humanize.Comma(int64(g.frozen)))
	}
	fmt.Fprintf(out, "\ntotal %s parameters (%s as float64)\n",
		humanize.Comma(int64(total)), humanize.Bytes(uint64(total)*8))
	return nil
}
