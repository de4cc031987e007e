/*
Copyright © 2026 the AMUSE authors.
This file is part of AMUSE.

AMUSE is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

AMUSE is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with AMUSE.  If not, see <http://www.gnu.org/licenses/>.*/

// Package amuseutil holds the amuse command line interface: worker
// processes, forwarding servers, scenario runs and file conversion.
package amuseutil

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/amuse/channel"
	"github.com/spatialmodel/amuse/worker"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version gives the version number.
const Version = "0.3.0"

// Cfg holds configuration information.
var Cfg *viper.Viper

// options hold the different configuration options.
var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	Cfg = viper.New()
	Cfg.SetEnvPrefix("AMUSE")

	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(workerCmd)
	Root.AddCommand(forwardCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(convertCmd)
	Root.AddCommand(tagsCmd)

	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "log.level",
			usage: `
              log.level is the logging verbosity: one of debug, info, warning
              or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. It can include
              environment variables. If LogFile is left blank, the log is only
              written to the terminal.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), forwardCmd.Flags()},
		},
		{
			name: "scenario",
			usage: `
              scenario is the path to the TOML file describing the codes, their
              initial particles and the coupling between them.`,
			shorthand:  "s",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "metrics",
			usage: `
              metrics is the address to serve Prometheus metrics on while the
              command runs, for example ":9090". Metrics are not served if it
              is left blank.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), forwardCmd.Flags()},
		},
		{
			name: "listen",
			usage: `
              listen is the address the forwarding server accepts hosts on.`,
			defaultVal: "127.0.0.1:6060",
			flagsets:   []*pflag.FlagSet{forwardCmd.Flags()},
		},
		{
			name: "startup_timeout",
			usage: `
              startup_timeout is how long a worker process may take to connect
              to its host, for example "30s".`,
			defaultVal: "1m",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), forwardCmd.Flags()},
		},
		{
			name: "precision",
			usage: `
              precision is the number of digits after the decimal point in
              text and CSV output.`,
			defaultVal: 12,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
		{
			name: "keys",
			usage: `
              keys specifies whether text and CSV output include a column with
              the particle keys.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{convertCmd.Flags()},
		},
	}

	// Set up options
	for _, option := range options {
		if option.flagsets == nil {
			panic(fmt.Errorf("missing flagsets for %s", option.name))
		}
		flags := option.flagsets[0]
		switch option.defaultVal.(type) {
		case string:
			if option.shorthand == "" {
				flags.String(option.name, option.defaultVal.(string), option.usage)
			} else {
				flags.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
			}
		case bool:
			flags.Bool(option.name, option.defaultVal.(bool), option.usage)
		case int:
			flags.Int(option.name, option.defaultVal.(int), option.usage)
		default:
			panic(fmt.Errorf("invalid argument type for %s", option.name))
		}
		Cfg.BindPFlag(option.name, flags.Lookup(option.name))
		for _, set := range option.flagsets[1:] {
			set.AddFlag(flags.Lookup(option.name))
		}
	}
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "amuse",
	Short: "A framework for coupling astrophysical simulation codes.",
	Long: `amuse couples gravitational dynamics codes, running in this process, in
worker processes or behind forwarding servers, into multiphysics
simulations. Use the subcommands specified below to access the model
functionality. Additional information is available with "amuse <command> --help".

Configuration can be set in a TOML configuration file given with --config,
with command line flags, or with environment variables in the format
'AMUSE_var' where 'var' is the name of the option.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setConfig()
	},
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets up logging.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("amuse: problem reading configuration file: %v", err)
		}
	}
	Cfg.AutomaticEnv()
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	level, err := logrus.ParseLevel(Cfg.GetString("log.level"))
	if err != nil {
		return fmt.Errorf("amuse: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	})
	return nil
}

// versionCmd prints the version.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of amuse.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "amuse v%s\n", Version)
	},
	DisableAutoGenTag: true,
}

var workerCmd = &cobra.Command{
	Use:   "worker code port",
	Short: "Serve a code to a host",
	Long: `worker connects to the host listening on the given local port and serves
the named code until the host stops it. Hosts start worker processes
themselves; it is rarely useful to run this command by hand.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := lookupCode(args[0])
		if err != nil {
			return err
		}
		return worker.Run(context.Background(), c.server(), args[1])
	},
	DisableAutoGenTag: true,
}

var forwardCmd = &cobra.Command{
	Use:   "forward code",
	Short: "Serve a code to remote hosts",
	Long: `forward accepts hosts on the --listen address and gives each one its
own worker process for the named code, forwarding messages between them.
It runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := lookupCode(args[0]); err != nil {
			return err
		}
		logw, err := checkLogFile(Cfg.GetString("LogFile"))
		if err != nil {
			return err
		}
		defer logw.Close()
		opts, err := channelOptions()
		if err != nil {
			return err
		}
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("amuse: %v", err)
		}
		stopMetrics, err := serveMetrics(Cfg.GetString("metrics"))
		if err != nil {
			return err
		}
		defer stopMetrics()

		l, err := net.Listen("tcp", Cfg.GetString("listen"))
		if err != nil {
			return fmt.Errorf("amuse: %v", err)
		}
		s := channel.NewForwardServer(func() channel.Channel {
			return channel.NewProcessChannel(exe, []string{"worker", args[0]}, opts...)
		})
		go s.Serve(l)
		logrus.WithFields(logrus.Fields{"code": args[0], "address": l.Addr().String()}).Info("forwarding")

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		defer signal.Stop(interrupt)
		select {
		case <-interrupt:
		case <-s.Done():
		}
		s.Shutdown()
		return nil
	},
	DisableAutoGenTag: true,
}

var tagsCmd = &cobra.Command{
	Use:   "tags code",
	Short: "List the functions of a code",
	Long: `tags prints the tag and name of each legacy function of the named code,
followed by the fingerprint that hosts and workers compare when they
connect.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := lookupCode(args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, s := range c.table.Specifications() {
			fmt.Fprintf(w, "%d\t%s\n", s.Tag, s.Name)
		}
		fmt.Fprintf(w, "fingerprint\t%s\n", c.table.Fingerprint())
		return nil
	},
	DisableAutoGenTag: true,
}

// channelOptions returns the channel options set in the configuration.
func channelOptions() ([]channel.Option, error) {
	d, err := cast.ToDurationE(Cfg.GetString("startup_timeout"))
	if err != nil {
		return nil, fmt.Errorf("amuse: startup_timeout: %v", err)
	}
	return []channel.Option{channel.WithStartupTimeout(d), channel.WithLogger(logrus.StandardLogger())}, nil
}

// serveMetrics serves the Prometheus metrics on addr until the returned
// function is called. An empty addr serves nothing.
func serveMetrics(addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("amuse: metrics: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux}
	go srv.Serve(l)
	logrus.WithField("address", l.Addr().String()).Info("serving metrics")
	return func() { srv.Close() }, nil
}

// checkLogFile directs the standard logger to the terminal and, if
// logFile is not empty, to logFile. The returned closer closes the file.
func checkLogFile(logFile string) (io.Closer, error) {
	if logFile == "" {
		logrus.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}
	f, err := os.Create(os.ExpandEnv(logFile))
	if err != nil {
		return nil, fmt.Errorf("amuse: problem creating log file: %v", err)
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
