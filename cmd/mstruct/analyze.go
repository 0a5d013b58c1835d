package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"MarketStructure/internal/analysis"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		timeframes []string
		periods    []string
		pretty     bool
	)
	cmd := &cobra.Command{
		Use:       "analyze {vp|zones|orb|fvg} SYMBOL",
		Short:     "Run one tool and print its result as JSON",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"vp", "zones", "orb", "fvg"},
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, symbol := args[0], args[1]
			tfs, err := analysis.ParseTimeframes(timeframes)
			if err != nil {
				return err
			}
			ps, err := parsePeriods(periods)
			if err != nil {
				return err
			}
			an, _, err := buildAnalyzer(a.cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var res interface{}
			switch tool {
			case "vp", "volume-profile":
				res = an.VolumeProfile(ctx, symbol, tfs)
			case "zones":
				res = an.Zones(ctx, symbol, tfs)
			case "orb":
				res = an.ORB(ctx, symbol, ps)
			case "fvg":
				res = an.FVG(ctx, symbol, tfs)
			default:
				return fmt.Errorf("unknown tool %q (want vp, zones, orb or fvg)", tool)
			}

			var out []byte
			if pretty {
				out, err = json.MarshalIndent(res, "", "  ")
			} else {
				out, err = json.Marshal(res)
			}
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().StringSliceVarP(&timeframes, "timeframes", "t", nil, "timeframes, e.g. 1m,5m,15m")
	cmd.Flags().StringSliceVarP(&periods, "periods", "p", nil, "ORB periods in minutes, e.g. 5,15,30")
	cmd.Flags().BoolVar(&pretty, "pretty", true, "indent the JSON output")
	return cmd
}

func parsePeriods(raw []string) ([]int, error) {
	out := make([]int, 0, len(raw))
	for _, p := range raw {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid period %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}
