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
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/finsieve/finsieve/common"
	"github.com/finsieve/finsieve/observability/opentelemetry"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	scheduleCmd.Flags().Int("every-hours", 24, "Hours between screener runs")
	viper.BindPFlag("schedule.every_hours", scheduleCmd.Flags().Lookup("every-hours"))

	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the screener periodically, writing a timestamped report each pass",
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		log.Info().Msg("initialized logging")

		shutdown, err := opentelemetry.Setup()
		if err != nil {
			log.Warn().Err(err).Msg("could not initialize tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Warn().Err(err).Msg("could not shut down tracer provider")
				}
			}()
		}

		tz, _ := time.LoadLocation("America/New_York") // New York is the reference time
		scheduler := gocron.NewScheduler(tz)
		scheduler.Every(viper.GetInt("schedule.every_hours")).Hours().Do(scheduledRun)
		scheduler.StartAsync()

		log.Info().Int("EveryHours", viper.GetInt("schedule.every_hours")).Msg("scheduler started")

		// shutdown cleanly on interrupt
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		sig := <-c
		fmt.Printf("Received signal: '%s'; shutting down...\n", sig.String())
		scheduler.Stop()
	},
}

func scheduledRun() {
	report, err := runScreen(context.Background())
	if err != nil {
		log.Error().Stack().Err(err).Msg("scheduled screener run failed")
		return
	}

	fn := fmt.Sprintf("screener-%s.json.lz4", time.Now().Format("20060102-150405"))
	if err := report.WriteJSON(fn); err != nil {
		log.Error().Stack().Err(err).Msg("could not write scheduled report")
	}
}
