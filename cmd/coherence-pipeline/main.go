/*
 * Copyright (C) 2024 WiltonOS, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	_ "net/http/pprof"

	"github.com/benbjohnson/clock"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wiltonos/coherence-pipeline/pkg/config"
	"github.com/wiltonos/coherence-pipeline/pkg/engine"
	"github.com/wiltonos/coherence-pipeline/pkg/operational"
	"github.com/wiltonos/coherence-pipeline/pkg/prometheus"
	"github.com/wiltonos/coherence-pipeline/pkg/utils"
)

var (
	buildVersion       = "unknown"
	buildDate          = "unknown"
	cfgFile            string
	logLevel           string
	envPrefix          = "COHERENCE-PIPELINE"
	defaultCfgFileName = ".coherence-pipeline"
	opts               config.Options
)

// rootCmd represents the root command
var rootCmd = &cobra.Command{
	Use:   "coherence-pipeline",
	Short: "Ingest, smooth and validate the coherence signal, fanning events out to subscribers",
	Run: func(_ *cobra.Command, _ []string) {
		run()
	},
}

// initConfig use config file and ENV variables if set.
func initConfig() {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal(err)
		}
		v.AddConfigPath(home)
		v.SetConfigName(defaultCfgFileName)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	cfgErr := v.ReadInConfig()

	bindFlags(rootCmd, v)

	initLogger()

	if cfgErr != nil {
		log.Errorf("Read config error: %v", cfgErr)
	}
}

func initLogger() {
	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		ll = log.ErrorLevel
	}
	log.SetLevel(ll)
	log.SetFormatter(&log.TextFormatter{DisableColors: false, FullTimestamp: true, PadLevelText: true, DisableQuote: true})
}

func dumpConfig(opts *config.Options) {
	configAsJSON, err := json.MarshalIndent(opts, "", "    ")
	if err != nil {
		panic(fmt.Sprintf("error dumping config: %v", err))
	}
	fmt.Printf("Using configuration:\n%s\n", configAsJSON)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if strings.Contains(f.Name, ".") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, ".", "_"))
			_ = v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix))
		}

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			switch val.(type) {
			case bool, uint, string, int32, int16, int8, int, uint32, uint64, int64, float64, float32, []string, []int:
				_ = cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val))
			default:
				b, err := jsoniter.Marshal(&val)
				if err != nil {
					log.Fatalf("can't parse flag %s into json with value %v got error %s", f.Name, val, err)
					return
				}
				_ = cmd.Flags().Set(f.Name, string(b))
			}
		}
	})
}

func initFlags() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $HOME/%s)", defaultCfgFileName))
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "Log level: debug, info, warning, error")
	rootCmd.PersistentFlags().StringVar(&opts.Health.Address, "health.address", "0.0.0.0", "Health server address")
	rootCmd.PersistentFlags().StringVar(&opts.Health.Port, "health.port", "8080", "Health server port")
	rootCmd.PersistentFlags().StringVar(&opts.Metrics.Address, "metrics.address", "0.0.0.0", "Metrics server address")
	rootCmd.PersistentFlags().IntVar(&opts.Metrics.Port, "metrics.port", 9090, "Metrics server port")
	rootCmd.PersistentFlags().BoolVar(&opts.Metrics.Disabled, "metrics.disabled", false, "Disable the metrics endpoint")
	rootCmd.PersistentFlags().IntVar(&opts.Profile.Port, "profile.port", 0, "Go pprof tool port (default: disabled)")
	rootCmd.PersistentFlags().StringVar(&opts.Engine, "engine", "", "json of config file engine field")
	rootCmd.PersistentFlags().StringVar(&opts.Sources, "sources", "", "json of config file sources field")
}

func main() {
	initFlags()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() {
	fmt.Printf("Starting %s:\n=====\nBuild version: %s\nBuild date: %s\n\n", filepath.Base(os.Args[0]), buildVersion, buildDate)

	dumpConfig(&opts)

	cfg, err := config.ParseConfig(&opts)
	if err != nil {
		log.Errorf("error in parsing config file: %v", err)
		os.Exit(1)
	}
	if cfg.Sources.Primary.URL == "" {
		log.Error("no primary source configured")
		os.Exit(1)
	}

	utils.SetupElegantExit()

	opMetrics := operational.NewMetrics(&opts.Metrics)
	promServer := prometheus.InitializePrometheus(&opts.Metrics, opMetrics.Registry())

	eng := engine.New(&cfg, clock.New(), opMetrics)

	if opts.Profile.Port != 0 {
		go func() {
			log.WithField("port", opts.Profile.Port).Info("starting PProf HTTP listener")
			log.WithError(http.ListenAndServe(fmt.Sprintf(":%d", opts.Profile.Port), nil)).
				Error("PProf HTTP listener stopped working")
		}()
	}

	healthServer := operational.NewHealthServer(&opts, eng.IsAlive, eng.IsReady)

	eng.Start()

	<-utils.ExitChannel()
	eng.Dispose()

	if promServer != nil {
		_ = promServer.Shutdown(context.Background())
	}
	_ = healthServer.Shutdown(context.Background())

	log.Debugf("exiting main run")
}
