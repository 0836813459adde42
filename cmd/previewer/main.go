package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/previewer/cmd/previewer/commands"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{}
	parser := kong.Parse(cli,
		kong.Bind(global),
		kong.Name("previewer"),
		kong.Description("Build git repositories into static previews and serve them by subdomain."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	if err := parser.Run(cli); err != nil {
		os.Exit(ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).Report(os.Stderr, err))
	}
}
