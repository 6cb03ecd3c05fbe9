package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/wyfcoding/pricingrisk/internal/pricing/application"
	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
	"github.com/wyfcoding/pricingrisk/internal/pricing/infrastructure/marketdata"
	grpcserver "github.com/wyfcoding/pricingrisk/internal/pricing/interfaces/grpc"
	"github.com/wyfcoding/pricingrisk/pkg/config"
	"github.com/wyfcoding/pricingrisk/pkg/grpcclient"
)

// rootOptions 全局参数
type rootOptions struct {
	configPath string
	method     string
	steps      int
	paths      int
	seed       int64
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "pricectl",
		Short:         "Option pricing, Greeks and volatility tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "service config file (engine section supplies defaults)")
	root.PersistentFlags().StringVar(&opts.method, "method", "", "AUTO, ANALYTICAL, LATTICE or MONTE_CARLO")
	root.PersistentFlags().IntVar(&opts.steps, "steps", 0, "lattice steps")
	root.PersistentFlags().IntVar(&opts.paths, "paths", 0, "monte carlo samples (antithetic pairs)")
	root.PersistentFlags().Int64Var(&opts.seed, "seed", -1, "monte carlo seed, negative for random")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "abort computation after this duration")

	root.AddCommand(priceCmd(opts))
	root.AddCommand(greeksCmd(opts))
	root.AddCommand(impliedVolCmd(opts))
	root.AddCommand(forecastCmd(opts))
	root.AddCommand(indicatorsCmd(opts))
	root.AddCommand(healthCmd(opts))
	return root
}

// service 按配置构建不带外部依赖的定价服务
func (o *rootOptions) service(extra ...application.Option) (*application.PricingService, error) {
	cfg := application.DefaultConfig()
	if o.configPath != "" {
		fileCfg, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		if cfg, err = application.NewConfig(fileCfg.Engine); err != nil {
			return nil, err
		}
	}
	return application.NewPricingService(cfg, extra...), nil
}

// options 在服务默认值之上叠加命令行参数
func (o *rootOptions) options(base domain.Options) domain.Options {
	if o.method != "" {
		base.Method = domain.Method(o.method)
	}
	if o.steps > 0 {
		base.Steps = o.steps
	}
	if o.paths > 0 {
		base.Paths = o.paths
	}
	if o.seed >= 0 {
		base = base.WithSeed(uint64(o.seed))
	}
	return base
}

func (o *rootOptions) context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	if o.timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, o.timeout)
	return tctx, func() { cancel(); stop() }
}

// priceFile 定价请求文件格式
type priceFile struct {
	Instrument       domain.Instrument     `json:"instrument"`
	Market           domain.MarketSnapshot `json:"market"`
	Options          json.RawMessage       `json:"options,omitempty"`
	MarketPrice      *float64              `json:"market_price,omitempty"`
	AllowUnconverged bool                  `json:"allow_unconverged,omitempty"`
}

func readJSON(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (o *rootOptions) priceCommand(svc *application.PricingService, path string) (application.PriceCommand, error) {
	var req priceFile
	if err := readJSON(path, &req); err != nil {
		return application.PriceCommand{}, err
	}
	opts := svc.DefaultOptions()
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			return application.PriceCommand{}, fmt.Errorf("options: %w", err)
		}
	}
	opts = o.options(opts)
	return application.PriceCommand{
		Instrument:       req.Instrument,
		Market:           req.Market,
		Options:          &opts,
		MarketPrice:      req.MarketPrice,
		AllowUnconverged: req.AllowUnconverged,
	}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func priceCmd(o *rootOptions) *cobra.Command {
	var file string
	var bothSides bool
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price one option from a JSON request file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := o.service()
			if err != nil {
				return err
			}
			req, err := o.priceCommand(svc, file)
			if err != nil {
				return err
			}
			ctx, cancel := o.context()
			defer cancel()

			if !bothSides {
				report, err := svc.Price(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			}

			// 同一组参数分别对看涨与看跌定价
			out := make(map[domain.OptionType]*domain.PricingReport, 2)
			for _, ot := range []domain.OptionType{domain.OptionTypeCall, domain.OptionTypePut} {
				side := req
				side.Instrument.OptionType = ot
				report, err := svc.Price(ctx, side)
				if err != nil {
					return fmt.Errorf("%s: %w", ot, err)
				}
				out[ot] = report
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with instrument, market and optional options")
	cmd.Flags().BoolVar(&bothSides, "both-sides", false, "price the call and the put of the same contract")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func greeksCmd(o *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "greeks",
		Short: "Compute Delta, Gamma, Vega, Theta and Rho",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := o.service()
			if err != nil {
				return err
			}
			req, err := o.priceCommand(svc, file)
			if err != nil {
				return err
			}
			req.Options.ComputeGreeks = true
			ctx, cancel := o.context()
			defer cancel()

			report, err := svc.Price(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd, report.Greeks)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with instrument, market and optional options")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func impliedVolCmd(o *rootOptions) *cobra.Command {
	var file string
	var marketPrice float64
	cmd := &cobra.Command{
		Use:   "implied-vol",
		Short: "Solve the volatility that reproduces a market price",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := o.service()
			if err != nil {
				return err
			}
			req, err := o.priceCommand(svc, file)
			if err != nil {
				return err
			}
			price := marketPrice
			if price <= 0 && req.MarketPrice != nil {
				price = *req.MarketPrice
			}
			if price <= 0 {
				return fmt.Errorf("%w: market price is required", domain.ErrInvalidInput)
			}
			ctx, cancel := o.context()
			defer cancel()

			res, err := svc.ImpliedVolatility(ctx, application.ImpliedVolCommand{
				Instrument:  req.Instrument,
				Market:      req.Market,
				MarketPrice: price,
				Options:     req.Options,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with instrument and market")
	cmd.Flags().Float64Var(&marketPrice, "market-price", 0, "observed option price, overrides market_price in the file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func forecastCmd(o *rootOptions) *cobra.Command {
	var returnsFile, historyFile, symbol string
	var horizon int
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Fit AR-GARCH to returns and forecast volatility",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var extra []application.Option
			fc := application.ForecastCommand{Symbol: symbol}
			switch {
			case returnsFile != "":
				if err := readJSON(returnsFile, &fc.Returns); err != nil {
					return err
				}
			case historyFile != "":
				if symbol == "" {
					return fmt.Errorf("--symbol is required with --history")
				}
				md, err := marketdata.LoadCSVFile(historyFile)
				if err != nil {
					return err
				}
				extra = append(extra, application.WithMarketData(md))
			default:
				return fmt.Errorf("one of --returns or --history is required")
			}

			svc, err := o.service(extra...)
			if err != nil {
				return err
			}
			cfg := svc.DefaultForecastConfig()
			if horizon > 0 {
				cfg.Horizon = horizon
			}
			fc.Config = &cfg

			ctx, cancel := o.context()
			defer cancel()
			res, err := svc.Forecast(ctx, fc)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&returnsFile, "returns", "", "JSON array of periodic returns")
	cmd.Flags().StringVar(&historyFile, "history", "", "CSV file with symbol,date,close rows")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol to read from the history file")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "forecast periods")
	return cmd
}

func indicatorsCmd(o *rootOptions) *cobra.Command {
	var historyFile, symbol string
	var cfg domain.IndicatorConfig
	cmd := &cobra.Command{
		Use:   "indicators",
		Short: "Compute SMA, EMA, RSI and MACD from a close history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if historyFile == "" || symbol == "" {
				return fmt.Errorf("--history and --symbol are required")
			}
			md, err := marketdata.LoadCSVFile(historyFile)
			if err != nil {
				return err
			}
			svc, err := o.service(application.WithMarketData(md))
			if err != nil {
				return err
			}

			ctx, cancel := o.context()
			defer cancel()
			res, err := svc.Indicators(ctx, symbol, &cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	d := domain.DefaultIndicatorConfig()
	cmd.Flags().StringVar(&historyFile, "history", "", "CSV file with symbol,date,close rows")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol to read from the history file")
	cmd.Flags().IntVar(&cfg.ShortWindow, "short", d.ShortWindow, "short moving average window")
	cmd.Flags().IntVar(&cfg.LongWindow, "long", d.LongWindow, "long moving average and RSI window")
	cmd.Flags().IntVar(&cfg.SignalSpan, "signal", d.SignalSpan, "MACD signal span")
	return cmd
}

func healthCmd(o *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the gRPC health of a running pricing service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := grpcclient.NewClient(grpcclient.ClientConfig{Target: addr, MaxRetries: 2, RetryDelay: 200})
			if err != nil {
				return err
			}
			defer conn.Close()

			timeout := o.timeout
			if timeout <= 0 {
				timeout = 5 * time.Second
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			status, err := grpcclient.CheckHealth(ctx, conn, grpcserver.ServiceName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "gRPC address")
	return cmd
}
