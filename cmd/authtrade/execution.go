package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"
	"github.com/tdex-network/tdex-authtrade/internal/core/domain"
	httpinterface "github.com/tdex-network/tdex-authtrade/internal/interfaces/http"
)

var list = cli.Command{
	Name:   "list",
	Usage:  "list all tracked trade executions",
	Action: listAction,
}

var status = cli.Command{
	Name:      "status",
	Usage:     "get the current status of a trade execution",
	ArgsUsage: "<execution_id>",
	Action:    statusAction,
}

var stream = cli.Command{
	Name:      "stream",
	Usage:     "follow the status updates of a trade execution until it ends",
	ArgsUsage: "<execution_id>",
	Action:    streamAction,
}

var cancel = cli.Command{
	Name:      "cancel",
	Usage:     "cancel a trade execution not yet submitted",
	ArgsUsage: "<execution_id>",
	Action:    executionCommandAction(http.MethodPost, "cancel"),
}

var retry = cli.Command{
	Name:      "retry",
	Usage:     "retry a failed trade execution",
	ArgsUsage: "<execution_id>",
	Action:    executionCommandAction(http.MethodPost, "retry"),
}

var ack = cli.Command{
	Name:      "ack",
	Usage:     "acknowledge a terminated trade execution and stop tracking it",
	ArgsUsage: "<execution_id>",
	Action:    executionCommandAction(http.MethodDelete, ""),
}

func listAction(ctx *cli.Context) error {
	client, err := getDaemonClient()
	if err != nil {
		return err
	}

	var reply httpinterface.ListExecutionsReply
	if err := client.do(http.MethodGet, "/v1/executions", nil, &reply); err != nil {
		return err
	}

	printJSON(reply)
	return nil
}

func statusAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return &invalidUsageError{ctx, ctx.Command.Name}
	}
	client, err := getDaemonClient()
	if err != nil {
		return err
	}

	var reply httpinterface.ExecutionReply
	path := "/v1/executions/" + ctx.Args().First()
	if err := client.do(http.MethodGet, path, nil, &reply); err != nil {
		return err
	}

	printJSON(reply)
	return nil
}

func executionCommandAction(method, command string) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return &invalidUsageError{ctx, ctx.Command.Name}
		}
		client, err := getDaemonClient()
		if err != nil {
			return err
		}

		id := ctx.Args().First()
		path := "/v1/executions/" + id
		if command != "" {
			path += "/" + command
		}
		if err := client.do(method, path, nil, nil); err != nil {
			return err
		}

		fmt.Printf("%s: %s\n", ctx.Command.Name, id)
		return nil
	}
}

func streamAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return &invalidUsageError{ctx, ctx.Command.Name}
	}
	client, err := getDaemonClient()
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(
		ctx.Context, client.streamURL(ctx.Args().First()), nil,
	)
	if err != nil {
		if resp != nil {
			var reply httpinterface.ErrorReply
			if jerr := json.NewDecoder(resp.Body).Decode(&reply); jerr == nil &&
				reply.Error != "" {
				return errors.New(reply.Error)
			}
		}
		return fmt.Errorf("unable to open stream: %w", err)
	}
	defer conn.Close()

	for {
		var status domain.ExecutionStatus
		if err := conn.ReadJSON(&status); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		printJSON(status)
	}
}
