package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/urfave/cli/v2"
	httpinterface "github.com/tdex-network/tdex-authtrade/internal/interfaces/http"
)

var tradeFlags = []cli.Flag{
	&cli.Uint64Flag{
		Name:     "asset",
		Usage:    "the id of the traded share asset",
		Required: true,
	},
	&cli.StringFlag{
		Name:     "direction",
		Usage:    "the trade direction, either buy or sell",
		Required: true,
	},
	&cli.StringFlag{
		Name:     "amount",
		Usage:    "the input amount in display units",
		Required: true,
	},
	&cli.StringFlag{
		Name:  "trader",
		Usage: "the trader address, defaults to the daemon signer",
	},
	&cli.UintFlag{
		Name:  "slippage",
		Usage: "slippage tolerance in basis points, defaults to the local config",
	},
	&cli.Int64Flag{
		Name:  "deadline",
		Usage: "unix timestamp after which the trade is rejected on-chain",
	},
}

var quote = cli.Command{
	Name:   "quote",
	Usage:  "get a quote for a trade without executing it",
	Flags:  tradeFlags,
	Action: quoteAction,
}

var execute = cli.Command{
	Name:  "execute",
	Usage: "execute a trade against the pool",
	Flags: append(
		tradeFlags,
		&cli.BoolFlag{
			Name:  "accept-high-impact",
			Usage: "acknowledge a price impact above the daemon threshold",
		},
		&cli.BoolFlag{
			Name:  "accept-degraded-nonce",
			Usage: "acknowledge a nonce not sourced from the settlement contract",
		},
	),
	Action: executeAction,
}

var nonce = cli.Command{
	Name:      "nonce",
	Usage:     "get the next settlement nonce of a trader",
	ArgsUsage: "<address>",
	Action:    nonceAction,
}

func quoteAction(ctx *cli.Context) error {
	client, err := getDaemonClient()
	if err != nil {
		return err
	}
	req, err := tradeRequestFromFlags(ctx)
	if err != nil {
		return err
	}

	var reply httpinterface.QuoteReply
	if err := client.do(http.MethodPost, "/v1/quote", req, &reply); err != nil {
		return err
	}

	printJSON(reply)
	return nil
}

func executeAction(ctx *cli.Context) error {
	client, err := getDaemonClient()
	if err != nil {
		return err
	}
	req, err := tradeRequestFromFlags(ctx)
	if err != nil {
		return err
	}
	req.AcceptHighImpact = ctx.Bool("accept-high-impact")
	req.AcceptDegradedNonce = ctx.Bool("accept-degraded-nonce")

	var reply httpinterface.ExecuteReply
	if err := client.do(http.MethodPost, "/v1/executions", req, &reply); err != nil {
		return err
	}

	printJSON(reply)
	return nil
}

func nonceAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return &invalidUsageError{ctx, ctx.Command.Name}
	}
	client, err := getDaemonClient()
	if err != nil {
		return err
	}

	var reply httpinterface.NonceReply
	path := fmt.Sprintf("/v1/traders/%s/nonce", ctx.Args().First())
	if err := client.do(http.MethodGet, path, nil, &reply); err != nil {
		return err
	}

	printJSON(reply)
	return nil
}

func tradeRequestFromFlags(ctx *cli.Context) (httpinterface.TradeRequest, error) {
	slippage := uint32(ctx.Uint("slippage"))
	if !ctx.IsSet("slippage") {
		state, err := getState()
		if err != nil {
			return httpinterface.TradeRequest{}, err
		}
		if s, ok := state["slippage"]; ok {
			v, err := strconv.ParseUint(s, 10, 32)
			if err != nil {
				return httpinterface.TradeRequest{}, fmt.Errorf(
					"invalid slippage in local config: %s", s,
				)
			}
			slippage = uint32(v)
		}
	}

	return httpinterface.TradeRequest{
		AssetID:     ctx.Uint64("asset"),
		Direction:   ctx.String("direction"),
		Trader:      ctx.String("trader"),
		Amount:      ctx.String("amount"),
		SlippageBps: slippage,
		Deadline:    ctx.Int64("deadline"),
	}, nil
}
