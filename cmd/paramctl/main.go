// cmd/paramctl/main.go
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	mbclient "github.com/tamzrod/nvparam/internal/client/modbus"
	nvlog "github.com/tamzrod/nvparam/internal/log"
	"github.com/tamzrod/nvparam/internal/param"
	"github.com/tamzrod/nvparam/internal/paramserver"
	"github.com/tamzrod/nvparam/internal/regmap"
)

func main() {
	app := &cli.App{
		Name:  "paramctl",
		Usage: "Inspect and change parameters on a remote node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "endpoint", Aliases: []string{"e"}, Usage: "host:port, or serial device with --rtu", Value: "127.0.0.1:5020", EnvVars: []string{"PARAMCTL_ENDPOINT"}},
			&cli.UintFlag{Name: "unit", Aliases: []string{"u"}, Usage: "Modbus unit id of the registry", Value: 1},
			&cli.DurationFlag{Name: "timeout", Usage: "Request timeout", Value: 2 * time.Second},
			&cli.BoolFlag{Name: "rtu", Usage: "Use Modbus RTU over a serial line"},
			&cli.IntFlag{Name: "baud", Usage: "Serial baud rate (RTU)", Value: 19200},
			&cli.StringFlag{Name: "parity", Usage: "Serial parity N, E or O (RTU)", Value: "E"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level", Value: "warn"},
		},
		Commands: []*cli.Command{
			{Name: "list", Usage: "List every parameter", Action: withClient(listAction)},
			{Name: "get", Usage: "Show one parameter", ArgsUsage: "<name>", Action: withClient(getAction)},
			{Name: "set", Usage: "Change one parameter (in RAM until save)", ArgsUsage: "<name> <value>", Action: withClient(setAction)},
			{Name: "defaults", Usage: "Show default and bounds of one parameter", ArgsUsage: "<name>", Action: withClient(defaultsAction)},
			{Name: "save", Usage: "Commit parameters to flash", Action: withClient(saveAction)},
			{Name: "erase", Usage: "Reset parameters to defaults (in RAM until save)", Action: withClient(eraseAction)},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type action func(c *cli.Context, cl *mbclient.Client, log *zap.SugaredLogger) error

// withClient connects before the action and closes after it.
func withClient(fn action) cli.ActionFunc {
	return func(c *cli.Context) error {
		logger, err := nvlog.New(c.String("log-level"), os.Stderr)
		if err != nil {
			return err
		}
		log := logger.Sugar()
		defer func() { _ = log.Sync() }()

		unit := c.Uint("unit")
		if unit > 255 {
			return fmt.Errorf("unit id %d out of range", unit)
		}

		cl, err := mbclient.New(mbclient.Config{
			Endpoint: c.String("endpoint"),
			UnitID:   uint8(unit),
			Timeout:  c.Duration("timeout"),
			RTU:      c.Bool("rtu"),
			BaudRate: c.Int("baud"),
			Parity:   c.String("parity"),
		})
		if err != nil {
			return fmt.Errorf("connect %s: %w", c.String("endpoint"), err)
		}
		defer func() { _ = cl.Close() }()

		log.Debugw("connected", "endpoint", c.String("endpoint"), "unit", unit)
		return fn(c, cl, log)
	}
}

// ---- actions ----

func listAction(c *cli.Context, cl *mbclient.Client, _ *zap.SugaredLogger) error {
	blocks, err := cl.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tTYPE\tVALUE")
	for i, b := range blocks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, b.Name, b.Type, formatValue(b.Type, b.Value))
	}
	return w.Flush()
}

func getAction(c *cli.Context, cl *mbclient.Client, _ *zap.SugaredLogger) error {
	name, err := oneArg(c, "name")
	if err != nil {
		return err
	}
	_, b, err := cl.Find(name)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, formatValue(b.Type, b.Value))
	return nil
}

func setAction(c *cli.Context, cl *mbclient.Client, log *zap.SugaredLogger) error {
	if c.NArg() != 2 {
		return errors.New("usage: set <name> <value>")
	}
	name, raw := c.Args().Get(0), c.Args().Get(1)

	idx, b, err := cl.Find(name)
	if err != nil {
		return err
	}

	v, err := parseValue(b.Type, raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := cl.Set(idx, b.Type, v); err != nil {
		return err
	}

	log.Infow("parameter set", "name", name, "index", idx, "value", raw)
	return nil
}

func defaultsAction(c *cli.Context, cl *mbclient.Client, _ *zap.SugaredLogger) error {
	name, err := oneArg(c, "name")
	if err != nil {
		return err
	}
	_, b, err := cl.Find(name)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "default: %s\n", formatValue(b.Type, b.Default))
	if b.Max.Kind != paramserver.KindEmpty {
		fmt.Fprintf(c.App.Writer, "min:     %s\n", formatNumeric(b.Min))
		fmt.Fprintf(c.App.Writer, "max:     %s\n", formatNumeric(b.Max))
	}
	return nil
}

func saveAction(c *cli.Context, cl *mbclient.Client, log *zap.SugaredLogger) error {
	if err := cl.Save(); err != nil {
		return err
	}
	log.Infow("parameters saved", "unit", c.Uint("unit"))
	return nil
}

func eraseAction(c *cli.Context, cl *mbclient.Client, log *zap.SugaredLogger) error {
	if err := cl.Erase(); err != nil {
		return err
	}
	log.Infow("parameters reset to defaults", "unit", c.Uint("unit"))
	return nil
}

// ---- helpers ----

func oneArg(c *cli.Context, what string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("usage: %s <%s>", c.Command.Name, what)
	}
	return c.Args().First(), nil
}

func parseValue(t param.Type, raw string) (paramserver.Value, error) {
	switch t {
	case param.Bool8:
		if b, err := strconv.ParseBool(raw); err == nil {
			return paramserver.BooleanValue(b), nil
		}
		n, err := strconv.ParseUint(raw, 0, 8)
		if err != nil {
			return paramserver.Value{}, fmt.Errorf("%q is not a bool8", raw)
		}
		return paramserver.Value{Kind: paramserver.KindBoolean, Boolean: uint8(n)}, nil

	case param.Int64:
		n, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			return paramserver.Value{}, fmt.Errorf("%q is not an int64", raw)
		}
		return paramserver.IntegerValue(n), nil

	case param.Float32:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return paramserver.Value{}, fmt.Errorf("%q is not a float32", raw)
		}
		return paramserver.RealValue(float32(f)), nil

	case param.String:
		if len(raw) > regmap.StringMaxChars {
			return paramserver.Value{}, fmt.Errorf("string longer than %d bytes", regmap.StringMaxChars)
		}
		return paramserver.StringValue(raw), nil

	default:
		return paramserver.Value{}, fmt.Errorf("type %s is not writable", t)
	}
}

func formatValue(t param.Type, v paramserver.Value) string {
	switch t {
	case param.Bool8:
		return strconv.Itoa(int(v.Boolean))
	case param.Int64:
		return strconv.FormatInt(v.Integer, 10)
	case param.Float32:
		return strconv.FormatFloat(float64(v.Real), 'g', -1, 32)
	case param.String:
		return strconv.Quote(v.String)
	default:
		return "-"
	}
}

func formatNumeric(n paramserver.NumericValue) string {
	switch n.Kind {
	case paramserver.KindInteger:
		return strconv.FormatInt(n.Integer, 10)
	case paramserver.KindReal:
		return strconv.FormatFloat(float64(n.Real), 'g', -1, 32)
	default:
		return "-"
	}
}
