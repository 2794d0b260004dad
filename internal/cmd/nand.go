package cmd

import (
	"github.com/spf13/cobra"
)

func init() {
	partitionsCmd.Flags().StringSlice("only", nil, "only decrypt the named partitions")

	rootCmd.AddCommand(partitionsCmd)
	rootCmd.AddCommand(dumpNandCmd)
	rootCmd.AddCommand(restoreNandCmd)
	rootCmd.AddCommand(titlesCmd)
	titlesCmd.Flags().AddFlagSet(&outputFlags)
}

var partitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "Decrypt the NAND partitions into <NAME>.bin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		only, _ := cmd.Flags().GetStringSlice("only")
		return runSession(true, false, func(s *session) error {
			if len(only) == 0 {
				return s.DecryptNandPartitions()
			}
			for _, name := range only {
				p, err := s.Layout().Partition(name, s.Platform())
				if err != nil {
					return err
				}
				if err := s.DecryptPartition(p); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var dumpNandCmd = &cobra.Command{
	Use:   "dump-nand",
	Short: "Copy the raw NAND into NAND.bin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(true, false, func(s *session) error {
			return s.DumpNand()
		})
	},
}

var restoreNandCmd = &cobra.Command{
	Use:   "restore-nand",
	Short: "Write NAND.bin back to the raw NAND",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(true, true, func(s *session) error {
			return s.RestoreNand()
		})
	},
}

var titlesCmd = &cobra.Command{
	Use:   "titles",
	Short: "Extract the NCCH contents of CTRNAND into <ID>.app",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(true, false, func(s *session) error {
			titles, err := s.DecryptNandSystemTitles()
			if err != nil {
				return err
			}
			return printJSON(titles)
		})
	},
}
