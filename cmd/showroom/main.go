package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/showroom/cmd/showroom/commands"
	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{}
	ctx := kong.Parse(cli,
		kong.Name("showroom"),
		kong.Description("Offline-first showroom kiosk runtime"),
		kong.Vars{"version": version.String(), "default_config": commands.DefaultConfigPath},
		kong.Bind(global),
	)

	if err := ctx.Run(global, cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
