package command

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-zoox/cli"
	"github.com/go-zoox/logger"

	"txcproxy/core"
	"txcproxy/protocol"
)

func RegisterClient(app *cli.MultipleProgram) {
	app.Register("client", &cli.Command{
		Name:  "client",
		Usage: "diagnostic client: control/data channel handshake against a txcproxy server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Usage: "control channel address, format: host:port",
				Value: "127.0.0.1:5555",
			},
			&cli.StringFlag{
				Name:  "login",
				Usage: "upstream login",
			},
			&cli.StringFlag{
				Name:  "password",
				Usage: "upstream password",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "upstream trade server host",
				Value: protocol.DefaultUpstreamHost,
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "upstream trade server port",
				Value: protocol.DefaultUpstreamPort,
			},
			&cli.IntFlag{
				Name:  "rqdelay",
				Usage: "upstream poll delay, milliseconds",
				Value: protocol.DefaultRQDelay,
			},
			&cli.BoolFlag{
				Name:  "milliseconds",
				Usage: "request millisecond timestamps",
				Value: true,
			},
			&cli.BoolFlag{
				Name:  "autopos",
				Usage: "request automatic position tracking",
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "dial/read timeout in seconds, 0 blocks forever",
				Value: core.DefaultClientTimeout,
			},
			&cli.StringFlag{
				Name:  "command",
				Usage: "raw command document, overrides the connect flags",
			},
		},
		Action: func(ctx *cli.Context) error {
			host, port, err := parseServer(ctx.String("server"))
			if err != nil {
				return err
			}

			doc := []byte(ctx.String("command"))
			if len(doc) == 0 {
				command := protocol.DefaultConnect()
				command.Login = ctx.String("login")
				command.Password = ctx.String("password")
				command.Host = ctx.String("host")
				command.Port = ctx.Int("port")
				command.RQDelay = ctx.Int("rqdelay")
				command.Milliseconds = ctx.Bool("milliseconds")
				command.Autopos = ctx.Bool("autopos")
				doc = command.Encode()
			}

			logger.Infof("server: %s", ctx.String("server"))

			client := core.NewClient(&core.ClientConfig{
				Host:    host,
				Port:    port,
				Command: doc,
				Timeout: time.Duration(ctx.Int("timeout")) * time.Second,
			})

			runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return client.Run(runCtx)
		},
	})
}
