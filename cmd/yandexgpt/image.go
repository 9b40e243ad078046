package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"
)

func newImageCmd(root *rootOptions) *cobra.Command {
	var (
		entry  string
		seed   uint64
		prompt string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Generate an image with YandexART",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root)
			if err != nil {
				return err
			}
			gen, err := a.generator(entry)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("seed") {
				seed = rand.Uint64N(1 << 32)
			}
			loc, err := gen.Generate(cmd.Context(), seed, prompt, out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), loc)
			return nil
		},
	}
	cmd.Flags().StringVarP(&entry, "entry", "e", "", "entry id (defaults to the first one)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "generation seed (random when omitted)")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "image description")
	cmd.Flags().StringVarP(&out, "out", "o", "image.jpeg", "output file name")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}
