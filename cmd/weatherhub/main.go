// Command weatherhub runs the WeatherHub API server and its admin tooling.
package main

import (
	"fmt"
	"os"

	"github.com/weatherhub/weatherhub/cmd/weatherhub/cli"
)

// Release builds stamp these with
//
//	-ldflags "-X main.version=1.4.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%FT%TZ)"
//
// and plain `go install` builds fall back to the embedded module info.
var version, commit, date = "dev", "none", "unknown"

func main() {
	err := cli.Execute(cli.ResolveBuildInfo(version, commit, date))
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "weatherhub: %v\n", err)
	os.Exit(1)
}
