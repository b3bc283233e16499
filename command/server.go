package command

import (
	"fmt"

	"github.com/go-zoox/cli"
	"github.com/go-zoox/config"
	"github.com/go-zoox/fs"

	"txcproxy/core"
)

func RegisterServer(app *cli.MultipleProgram) {
	app.Register("server", &cli.Command{
		Name:  "server",
		Usage: "proxy server for the XML connector",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "the filepath for server configuration",
				Aliases: []string{"c"},
			},
		},
		Action: func(ctx *cli.Context) error {
			var cfg core.ServerConfig

			if filepath := ctx.String("config"); filepath != "" {
				if !fs.IsExist(filepath) {
					return fmt.Errorf("config file not found at %s", filepath)
				}

				if err := config.Load(&cfg, &config.LoadOptions{
					FilePath: filepath,
				}); err != nil {
					return fmt.Errorf("failed to load config file at %s: %v", filepath, err)
				}
			}

			server := core.NewServer(&cfg)

			return server.Run()
		},
	})
}
