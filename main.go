package main

import (
	"github.com/go-zoox/cli"

	"txcproxy/command"
	"txcproxy/core"
)

func main() {
	app := cli.NewMultipleProgram(&cli.MultipleProgramConfig{
		Name:    "txcproxy",
		Usage:   "control/data channel proxy and diagnostic client for the XML connector",
		Version: core.Version,
	})

	command.RegisterClient(app)
	command.RegisterServer(app)

	app.Run()
}
