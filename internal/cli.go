// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package internal

import (
	"github.com/spf13/cobra"

	"github.com/mlnoga/flatfield/internal/synth"
)

// Version reported by the command line tool
const Version = "0.3.0"

// Creates the root command with all subcommands
func NewRootCommand() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:     "flatfield",
		Short:   "Flat field correction for detector chunk exposures",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			LogConfigure()
			if !quiet {
				LogPrintf("flatfield %s, running on %s\n", Version, MachineInfo())
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress the startup banner")

	cmd.AddCommand(newCorrectCommand())
	cmd.AddCommand(newStatsCommand())
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newSynthCommand())
	cmd.AddCommand(newPreviewCommand())
	return cmd
}

func newCorrectCommand() *cobra.Command {
	p := &CorrectParams{}
	cmd := &cobra.Command{
		Use:   "correct <chunk files...>",
		Short: "Flat field correct chunk exposures against a master flat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileNames, err := GlobFilenameWildcards(args)
			if err != nil {
				return err
			}
			return CmdCorrect(fileNames, p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.Master, "master", "", "master flat exposure")
	f.StringVar(&p.Algorithm, "algorithm", "", "algorithm policy file (.toml, .yaml)")
	f.StringVar(&p.Dataset, "dataset", "", "dataset policy file, defaults to the algorithm policy file")
	f.StringVar(&p.OutPattern, "out", "", "output file pattern with one %d for the chunk index")
	f.Int64Var(&p.Memory, "memory", 0, "memory limit in MB for concurrent chunks, 0 for automatic")
	cmd.MarkFlagRequired("master")
	cmd.MarkFlagRequired("algorithm")
	return cmd
}

func newStatsCommand() *cobra.Command {
	p := &StatsParams{SigClipVal: 3, SigClipMax: 10}
	cmd := &cobra.Command{
		Use:   "stats <files...>",
		Short: "Print statistics for exposures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileNames, err := GlobFilenameWildcards(args)
			if err != nil {
				return err
			}
			p.SigClip = cmd.Flags().Changed("sigclip")
			return CmdStats(fileNames, p)
		},
	}
	f := cmd.Flags()
	f.Float64Var(&p.SigClipVal, "sigclip", p.SigClipVal, "also report statistics clipped at this many standard deviations")
	f.IntVar(&p.SigClipMax, "sigclipmax", p.SigClipMax, "maximum sigma clipping iterations")
	return cmd
}

func newServeCommand() *cobra.Command {
	p := &ServeParams{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve flat field correction over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return CmdServe(p)
		},
	}
	cmd.Flags().IntVar(&p.Port, "port", 8080, "TCP port to listen on")
	cmd.Flags().StringVar(&p.WebDir, "web", "", "static web content to serve on /")
	return cmd
}

func newSynthCommand() *cobra.Command {
	p := &SynthParams{Params: synth.DefaultParams()}
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate a synthetic vignetted flat and matching chunk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return CmdSynth(p)
		},
	}
	f := cmd.Flags()
	f.IntVar(&p.Rows, "rows", p.Rows, "rows")
	f.IntVar(&p.Cols, "cols", p.Cols, "columns")
	f.Float64Var(&p.FlatLevel, "level", p.FlatLevel, "flat level in ADU at the optical center")
	f.Float64Var(&p.Sky, "sky", p.Sky, "chunk sky level in ADU")
	f.Float64Var(&p.Vignetting, "vignetting", p.Vignetting, "fractional response loss in the corners")
	f.Float64Var(&p.Noise, "noise", p.Noise, "relative noise amplitude")
	f.Int64Var(&p.CCDID, "ccdid", p.CCDID, "detector id written to metadata")
	f.StringVar(&p.Filter, "filter", p.Filter, "filter name written to metadata")
	f.StringVar(&p.OutFlat, "out-flat", "", "output file for the flat")
	f.StringVar(&p.OutChunk, "out-chunk", "", "output file for the chunk")
	return cmd
}

func newPreviewCommand() *cobra.Command {
	p := &PreviewParams{}
	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Render a false-color PNG heat map of an exposure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return CmdPreview(args[0], p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.Out, "out", "", "output PNG file")
	f.Float64Var(&p.Lo, "lo", 0, "value at the low end of the gradient")
	f.Float64Var(&p.Hi, "hi", 0, "value at the high end of the gradient, automatic if not above lo")
	cmd.MarkFlagRequired("out")
	return cmd
}
