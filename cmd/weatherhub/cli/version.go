package cli

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"built"`
}

// ResolveBuildInfo returns the ldflags-stamped values, filling any that were
// left at their defaults from the module and VCS data embedded by the Go
// toolchain, so `go install ...@vX.Y.Z` builds still report a version.
func ResolveBuildInfo(version, commit, date string) BuildInfo {
	b := BuildInfo{Version: version, Commit: commit, Date: date}
	if bi, ok := debug.ReadBuildInfo(); ok {
		b = b.withModule(bi)
	}
	return b
}

func (b BuildInfo) withModule(bi *debug.BuildInfo) BuildInfo {
	if b.Version == "" || b.Version == "dev" {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			b.Version = v
		}
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && (b.Commit == "" || b.Commit == "none"):
			b.Commit = s.Value
		case s.Key == "vcs.time" && (b.Date == "" || b.Date == "unknown"):
			b.Date = s.Value
		}
	}
	return b
}

type versionReport struct {
	BuildInfo
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	DataDir   string `json:"data_dir"`
}

func newVersionCmd(info BuildInfo) *cobra.Command {
	var jsonOutput, short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, versionString())
				return err
			}

			rep := versionReport{
				BuildInfo: info,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			if cfg, err := loadConfig(); err == nil {
				rep.DataDir = cfg.DataDir
			}

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}

			fmt.Fprintf(out, "WeatherHub %s\n", versionString())
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "  commit\t%s\n", rep.Commit)
			fmt.Fprintf(tw, "  built\t%s\n", rep.Date)
			fmt.Fprintf(tw, "  go\t%s\n", rep.GoVersion)
			fmt.Fprintf(tw, "  platform\t%s\n", rep.Platform)
			fmt.Fprintf(tw, "  data dir\t%s\n", rep.DataDir)
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")

	return cmd
}
