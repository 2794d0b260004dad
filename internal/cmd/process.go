package cmd

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// outputFlags is filled before any init function runs, so that commands can add it from theirs.
var (
	outputFlags pflag.FlagSet
	_           = outputFlags.BoolP("compact", "c", false, "disable pretty-printing of JSON output")
)

func init() {
	viper.BindPFlag("compact", outputFlags.Lookup("compact"))
}

// printJSON writes a report on stdout.
func printJSON(v interface{}) error {
	return writeJSON(os.Stdout, v, viper.GetBool("compact"))
}

func writeJSON(w io.Writer, v interface{}, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}
