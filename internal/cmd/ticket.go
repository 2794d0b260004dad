package cmd

import (
	"github.com/connesc/ctrdecrypt"
	"github.com/spf13/cobra"
)

func init() {
	titleKeysCmd.Flags().AddFlagSet(&outputFlags)
	titleKeysCmd.Flags().Bool("full-scan", false, "scan the whole CTRNAND instead of the two ticket.db copies")
	titleKeysFileCmd.Flags().AddFlagSet(&outputFlags)

	rootCmd.AddCommand(dumpTicketCmd)
	rootCmd.AddCommand(titleKeysCmd)
	rootCmd.AddCommand(titleKeysFileCmd)
}

var dumpTicketCmd = &cobra.Command{
	Use:   "dump-ticket",
	Short: "Dump both copies of ticket.db into ticket.bin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(true, false, func(s *session) error {
			return s.DumpTicket()
		})
	},
}

var titleKeysCmd = &cobra.Command{
	Use:   "titlekeys",
	Short: "Recover the title keys of the NAND tickets into decTitleKeys.bin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fullScan, _ := cmd.Flags().GetBool("full-scan")
		return runSession(true, false, func(s *session) error {
			bundle, err := recoverTitleKeys(s, fullScan)
			if err != nil {
				return err
			}
			return printJSON(bundle.Infos())
		})
	},
}

func recoverTitleKeys(s *session, fullScan bool) (*ctrdecrypt.KeyBundle, error) {
	if !fullScan {
		return s.DecryptTitleKeysNand()
	}
	ctrnand, err := s.CTRNAND()
	if err != nil {
		return nil, err
	}
	return s.ScanPartitionTitleKeys(ctrnand)
}

var titleKeysFileCmd = &cobra.Command{
	Use:   "titlekeys-file",
	Short: "Decrypt the title keys of encTitleKeys.bin into decTitleKeys.bin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(false, false, func(s *session) error {
			bundle, err := s.DecryptTitleKeysFile()
			if err != nil {
				return err
			}
			return printJSON(bundle.Infos())
		})
	},
}
