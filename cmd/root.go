// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"

	"github.com/finsieve/finsieve/common"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// market data API
	viper.BindEnv("eodhd.token", "EODHD_TOKEN")
	rootCmd.PersistentFlags().String("eodhd-token", "", "Market data API token")
	viper.BindPFlag("eodhd.token", rootCmd.PersistentFlags().Lookup("eodhd-token"))

	// credit budget
	viper.BindEnv("budget.limit", "FINSIEVE_BUDGET_LIMIT")
	rootCmd.PersistentFlags().Int("budget-limit", 1000, "API credits available per budget window")
	viper.BindPFlag("budget.limit", rootCmd.PersistentFlags().Lookup("budget-limit"))

	rootCmd.PersistentFlags().Duration("budget-window", 0, "Credit budget window length (0 uses the default)")
	viper.BindPFlag("budget.window", rootCmd.PersistentFlags().Lookup("budget-window"))

	rootCmd.PersistentFlags().Duration("budget-poll", 0, "How often to re-check an exhausted budget (0 uses the default)")
	viper.BindPFlag("budget.poll", rootCmd.PersistentFlags().Lookup("budget-poll"))

	// Logging configuration
	viper.BindEnv("log.level", "FINSIEVE_LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-level", "warning", "Logging level")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.BindEnv("log.report_caller", "FINSIEVE_LOG_REPORT_CALLER")
	rootCmd.PersistentFlags().Bool("log-report-caller", false, "Log function name that called log statement")
	viper.BindPFlag("log.report_caller", rootCmd.PersistentFlags().Lookup("log-report-caller"))

	viper.BindEnv("log.output", "FINSIEVE_LOG_OUTPUT")
	rootCmd.PersistentFlags().String("log-output", "stdout", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	viper.BindPFlag("log.output", rootCmd.PersistentFlags().Lookup("log-output"))

	rootCmd.PersistentFlags().Bool("log-pretty", false, "Print logs in human readable form")
	viper.BindPFlag("log.pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))

	// tracing
	viper.BindEnv("otlp.endpoint", "OTLP_ENDPOINT")
	rootCmd.PersistentFlags().String("otlp-endpoint", "", "OTLP trace collector endpoint, if blank don't export traces")
	viper.BindPFlag("otlp.endpoint", rootCmd.PersistentFlags().Lookup("otlp-endpoint"))
}

var rootCmd = &cobra.Command{
	Use:     "finsieve",
	Version: common.CurrentVersion.String(),
	Short:   "Finsieve enriches and screens exchange-listed instruments",
	Long: `Finsieve downloads market data for a catalog of exchange listings,
derives performance, liquidity and dividend metrics, merges listings of
the same instrument and filters the result by liquidity criteria.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
