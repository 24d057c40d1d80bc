package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "editclick <input>",
		Short: "Hard-cut a local MP4 along shot boundaries, then add subtitles and background music",
		Args: func(cmd *cobra.Command, args []string) error {
			if dump, _ := cmd.Flags().GetBool("dump-config"); dump {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dump, _ := cmd.Flags().GetBool("dump-config"); dump {
				return dumpConfig(cmd)
			}
			return run(cmd, args[0])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.PersistentFlags().String("config", "", "Settings file (default: ./editclick.yaml, ~/.editclick/config.yaml, /etc/editclick/config.yaml)")
	root.PersistentFlags().String("policy", "", "Cut policy: keep-all, drop-shots, silence-energy")
	root.PersistentFlags().String("straddle", "", "Annotations crossing a cut: truncate, drop, split")
	root.PersistentFlags().IntSlice("drop", nil, "Shot indices to cut out")

	root.Flags().String("out", "out", "Output directory")
	root.Flags().String("cache", ".cache", "Cache directory")
	root.Flags().Bool("no-subtitles", false, "Skip subtitle rendering")
	root.Flags().Bool("no-bgm", false, "Skip background music")
	root.Flags().Bool("dump-config", false, "Print the effective settings as YAML and exit")

	root.AddCommand(newPlanCmd())
	return root
}
