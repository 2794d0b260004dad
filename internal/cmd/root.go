package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/connesc/ctrdecrypt"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ctrdecrypt",
	Short: "Decrypt the NAND of the Nintendo 3DS, also known as CTR, and generate xorpads",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
	},
	SilenceUsage: true,
}

// Execute the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihandler.Default)

	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/ctrdecrypt/config.yaml)")
	flags.BoolP("verbose", "V", false, "verbose output")
	flags.StringP("nand", "n", "", "raw NAND image or device")
	flags.String("cid", "", "NAND CID, as 32 hexadecimal characters")
	flags.String("cid-file", "", "file holding the raw 16-byte NAND CID")
	flags.StringP("keys", "k", "", "AES key file (slot0xNNKeyX = HEX lines)")
	flags.StringP("platform", "p", "auto", "console platform: auto, o3ds or n3ds")
	flags.StringP("work-dir", "w", ".", "directory holding input files and receiving outputs")
	flags.String("missing-seed", "skip", "what to do with NCCH pads whose seed is missing: skip or abort")

	for _, name := range []string{"verbose", "nand", "cid", "cid-file", "keys", "platform", "work-dir", "missing-seed"} {
		viper.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(filepath.Join(home, ".config", "ctrdecrypt"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("ctrdecrypt")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}
}

func readCID() ([]byte, error) {
	if s := viper.GetString("cid"); s != "" {
		cid, err := hex.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid CID: %w", err)
		}
		return cid, nil
	}
	if name := viper.GetString("cid-file"); name != "" {
		cid, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read CID: %w", err)
		}
		if len(cid) < ctrdecrypt.CIDSize {
			return nil, fmt.Errorf("CID file must hold at least %d bytes", ctrdecrypt.CIDSize)
		}
		return cid[:ctrdecrypt.CIDSize], nil
	}
	return nil, nil
}

func loadEngine() (*ctrdecrypt.Engine, error) {
	engine := ctrdecrypt.NewEngine()
	name := viper.GetString("keys")
	if name == "" {
		log.Warn("No key file given, only keys found in the work directory will be available")
		return engine, nil
	}

	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file: %w", err)
	}
	defer file.Close()

	count, err := ctrdecrypt.LoadKeys(file, engine)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"file": name, "count": count}).Debug("Loaded keys")
	return engine, nil
}

type session struct {
	*ctrdecrypt.Decryptor
	close func()
}

// openSession builds a Decryptor from the configuration. The NAND is only opened if needNand
// is set, writable if writeNand is set.
func openSession(needNand, writeNand bool) (*session, error) {
	engine, err := loadEngine()
	if err != nil {
		return nil, err
	}

	cid, err := readCID()
	if err != nil {
		return nil, err
	}

	missingSeed, err := ctrdecrypt.ParseMissingSeedPolicy(viper.GetString("missing-seed"))
	if err != nil {
		return nil, err
	}

	platform := ctrdecrypt.PlatformAny
	if s := viper.GetString("platform"); s != "" && s != "auto" {
		if platform, err = ctrdecrypt.ParsePlatform(s); err != nil {
			return nil, err
		}
	}

	cfg := ctrdecrypt.Config{
		Fs:          afero.NewBasePathFs(afero.NewOsFs(), viper.GetString("work-dir")),
		Engine:      engine,
		CID:         cid,
		Platform:    platform,
		MissingSeed: missingSeed,
	}

	var image afero.File
	if needNand {
		name := viper.GetString("nand")
		if name == "" {
			return nil, fmt.Errorf("--nand is required")
		}
		if cid == nil {
			return nil, fmt.Errorf("--cid or --cid-file is required")
		}
		if cfg.Device, image, err = ctrdecrypt.OpenImage(afero.NewOsFs(), name, writeNand, ctrdecrypt.RetailLayout.SectorSize); err != nil {
			return nil, err
		}
	}

	progress := newProgress()
	cfg.Progress = progress
	s := &session{close: func() {
		progress.Wait()
		if image != nil {
			image.Close()
		}
	}}

	s.Decryptor, err = ctrdecrypt.New(cfg)
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// runSession opens a session, runs fn and closes the session.
func runSession(needNand, writeNand bool, fn func(s *session) error) error {
	s, err := openSession(needNand, writeNand)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}
