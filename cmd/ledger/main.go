package main

import (
	"os"

	"github.com/alecthomas/kong"

	_ "time/tzdata"
)

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("ledger"),
		kong.Description("Two-person workout ledger with skip points."),
		kong.UsageOnError(),
	)

	if err := kctx.Run(&cli); err != nil {
		cli.logger().Error("command failed", "command", kctx.Command(), "error", err)
		os.Exit(1)
	}
}
