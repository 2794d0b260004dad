package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	for _, cmd := range []*cobra.Command{ncchPadCmd, sdPadCmd, nandPadCmd} {
		cmd.Flags().AddFlagSet(&outputFlags)
		padgenCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(padgenCmd)
}

var padgenCmd = &cobra.Command{
	Use:   "padgen",
	Short: "Generate xorpads",
}

var ncchPadCmd = &cobra.Command{
	Use:   "ncch",
	Short: "Generate the NCCH xorpads listed in ncchinfo.bin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(false, false, func(s *session) error {
			results, err := s.NcchPadgen()
			if err != nil {
				return err
			}
			return printJSON(results)
		})
	},
}

var sdPadCmd = &cobra.Command{
	Use:   "sd",
	Short: "Generate the SD xorpads listed in SDinfo.bin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(false, false, func(s *session) error {
			results, err := s.SdPadgen()
			if err != nil {
				return err
			}
			return printJSON(results)
		})
	},
}

var nandPadCmd = &cobra.Command{
	Use:   "nand",
	Short: "Generate the xorpad of the CTRNAND FAT16 filesystem",
	Long:  "Generate the xorpad of the CTRNAND FAT16 filesystem. The platform is detected from --nand when given, otherwise --platform is required.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(viper.GetString("nand") != "", false, func(s *session) error {
			result, err := s.NandPadgen()
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}
