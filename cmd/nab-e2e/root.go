package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wanmail/eyes/nab"
	"github.com/wanmail/eyes/suite"
)

// envPrefix prefixes the environment variable of every option, e.g.
// NAB_GRID.
const envPrefix = "NAB"

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "nab-e2e",
		Short:         "Checks the shadow DOM search field of the NAB locations page.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// glog flags are parsed by cobra; this only marks them parsed.
			if !flag.Parsed() {
				if err := flag.CommandLine.Parse(nil); err != nil {
					return err
				}
			}
			return initializeConfig(v, cfgFile)
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./nab-e2e.yaml)")
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	root.AddCommand(newRunCmd(v))
	return root
}

// initializeConfig reads the config file, if any, and the environment.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("nab-e2e")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config file: %w", err)
		}
		glog.V(1).Info("no config file, using flags and environment")
	} else {
		glog.Infof("using config file %s", v.ConfigFileUsed())
	}
	return nil
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	d := suite.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scenario and print the visual test results as YAML.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := suite.LoadOptions(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd, opts)
		},
	}
	f := cmd.Flags()
	f.String("grid", string(d.Grid), "where screenshots are rendered: local or cloud")
	f.String("execution", string(d.Execution), "where the browser runs: local or cloud")
	f.String("teardown-status", string(d.TeardownStatus), "status sent when a test ends: outcome-derived or fixed")
	f.String("fixed-status", d.FixedStatus, "status sent with --teardown-status=fixed")
	f.Int("concurrency", d.Concurrency, "Ultrafast Grid concurrency")
	f.String("local-addr", "", "WebDriver endpoint for local execution")
	f.String("tunnel-id", "", "Applitools tunnel for execution cloud browsers")
	f.String("chromedriver", "", "ChromeDriver binary started for local execution")
	f.Bool("headless", d.Headless, "run a local Chrome headless")
	f.Duration("timeout", d.ElementTimeout, "how long to wait for page elements")

	if err := bindFlags(v, f); err != nil {
		panic(err)
	}
	return cmd
}

// bindFlags makes every flag the value of the option key with the same name,
// dashes replaced by underscores.
func bindFlags(v *viper.Viper, f *pflag.FlagSet) error {
	var err error
	f.VisitAll(func(fl *pflag.Flag) {
		if err != nil {
			return
		}
		err = v.BindPFlag(strings.ReplaceAll(fl.Name, "-", "_"), fl)
	})
	return err
}

func run(ctx context.Context, cmd *cobra.Command, opts suite.Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := suite.Setup(opts, suite.WithServiceOutput(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	scenario := nab.Default()
	scenario.AppName = opts.AppName
	scenario.Timeout = opts.ElementTimeout
	scenario.Interval = opts.PollInterval
	runErr := s.Run(ctx, scenario.TestName, scenario.Run)

	if _, err := s.Teardown(ctx, cmd.OutOrStdout()); err != nil {
		glog.Errorf("suite teardown: %v", err)
		if runErr == nil {
			return err
		}
	}
	return runErr
}
