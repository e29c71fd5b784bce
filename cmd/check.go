package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netsandbox/netsandbox/sim/check"
)

var checkKind string // Checker profile

// fileCheck is one line of the check report.
type fileCheck struct {
	File string `json:"file"`
	check.Result
}

var checkCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Run the safety checker over source files",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind, err := check.ParseKind(checkKind)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		failed, err := checkFiles(os.Stdout, kind, args)
		if err != nil {
			logrus.Fatalf("Check failed: %v", err)
		}
		if failed > 0 {
			os.Exit(1)
		}
	},
}

// checkFiles checks every file and writes one JSON line per file to out. It
// returns the number of files that did not pass.
func checkFiles(out io.Writer, kind check.Kind, files []string) (int, error) {
	enc := json.NewEncoder(out)
	failed := 0
	for _, f := range files {
		code, err := os.ReadFile(f)
		if err != nil {
			return failed, fmt.Errorf("failed to read %s: %w", f, err)
		}
		res := check.Check(kind, string(code))
		if !res.OK {
			failed++
		}
		if err := enc.Encode(fileCheck{File: f, Result: res}); err != nil {
			return failed, err
		}
	}
	return failed, nil
}

func init() {
	checkCmd.Flags().StringVar(&checkKind, "kind", string(check.KindRun), "Checker profile: run, node, message")
	rootCmd.AddCommand(checkCmd)
}
