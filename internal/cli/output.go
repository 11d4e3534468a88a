package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

func lookupConfigEnv() string { return os.Getenv("LEDGER_CONFIG") }

// output writes v as indented JSON, or calls text for the human format.
func output(w io.Writer, opts *RootOptions, v any, text func(io.Writer)) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
