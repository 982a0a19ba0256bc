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
	"time"

	"github.com/finsieve/finsieve/common"
	"github.com/finsieve/finsieve/data"
	"github.com/finsieve/finsieve/metrics"
	"github.com/finsieve/finsieve/observability/opentelemetry"
	"github.com/finsieve/finsieve/screener"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	screenCmd.Flags().String("equities", "", "CSV catalog of equity listings")
	viper.BindPFlag("catalog.equities", screenCmd.Flags().Lookup("equities"))

	screenCmd.Flags().String("bonds", "", "CSV catalog of bond listings")
	viper.BindPFlag("catalog.bonds", screenCmd.Flags().Lookup("bonds"))

	screenCmd.Flags().Float64("min-adv", 0, "Reject instruments whose summed median dollar volume is below this floor")
	viper.BindPFlag("criteria.min_adv", screenCmd.Flags().Lookup("min-adv"))

	screenCmd.Flags().Float64("max-spread", 0, "Reject instruments whose ADV-weighted spread percent exceeds this ceiling")
	viper.BindPFlag("criteria.max_spread", screenCmd.Flags().Lookup("max-spread"))

	screenCmd.Flags().Float64("coverage", 0, "Keep the top fraction (0,1] of each bucket by liquidity instead of applying thresholds")
	viper.BindPFlag("criteria.coverage", screenCmd.Flags().Lookup("coverage"))

	screenCmd.Flags().Int("chunk-size", screener.DefaultChunkSize, "Listings fetched concurrently per chunk")
	viper.BindPFlag("pipeline.chunk_size", screenCmd.Flags().Lookup("chunk-size"))

	screenCmd.Flags().Duration("chunk-delay", 0, "Courtesy pause between chunks")
	viper.BindPFlag("pipeline.chunk_delay", screenCmd.Flags().Lookup("chunk-delay"))

	screenCmd.Flags().Duration("deadline", 0, "Abort outstanding fetches after this duration (0 means no deadline)")
	viper.BindPFlag("pipeline.deadline", screenCmd.Flags().Lookup("deadline"))

	screenCmd.Flags().Int("ttm-months", 12, "Trailing dividend window in months")
	viper.BindPFlag("dividend.ttm_months", screenCmd.Flags().Lookup("ttm-months"))

	screenCmd.Flags().Int("split-lookback-months", 18, "How far back to detect splits for dividend restatement")
	viper.BindPFlag("dividend.split_lookback_months", screenCmd.Flags().Lookup("split-lookback-months"))

	screenCmd.Flags().StringP("output", "o", "screener-report.json", "Report file name; use a .lz4 suffix to compress")
	viper.BindPFlag("report.output", screenCmd.Flags().Lookup("output"))

	screenCmd.Flags().String("csv-output", "", "Also write a flat CSV of accepted instruments")
	viper.BindPFlag("report.csv_output", screenCmd.Flags().Lookup("csv-output"))

	rootCmd.AddCommand(screenCmd)
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Enrich a listing catalog and filter it by liquidity",
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

		report, err := runScreen(context.Background())
		if err != nil {
			log.Fatal().Err(err).Msg("screener run failed")
		}

		if fn := viper.GetString("report.output"); fn != "" {
			if err := report.WriteJSON(fn); err != nil {
				log.Fatal().Err(err).Msg("could not write report")
			}
		}
		if fn := viper.GetString("report.csv_output"); fn != "" {
			if err := report.WriteCSV(fn); err != nil {
				log.Fatal().Err(err).Msg("could not write csv report")
			}
		}
	},
}

// runScreen wires the budget, resolver, client and pipeline together
// from configuration and executes one run. The API token is validated
// before any catalog work so a misconfigured run fails immediately.
func runScreen(ctx context.Context) (*screener.Report, error) {
	budget := data.NewCreditBudget(viper.GetInt("budget.limit"),
		viper.GetDuration("budget.window"), viper.GetDuration("budget.poll"))
	resolver := data.NewResolver()

	client, err := data.NewClient(viper.GetString("eodhd.token"), budget, resolver, data.DefaultEndpointCosts())
	if err != nil {
		return nil, err
	}

	instruments, err := loadCatalogs()
	if err != nil {
		return nil, err
	}

	criteria := screener.Criteria{Coverage: viper.GetFloat64("criteria.coverage")}
	if v := viper.GetFloat64("criteria.min_adv"); v > 0 {
		criteria.MinADV = &v
	}
	if v := viper.GetFloat64("criteria.max_spread"); v > 0 {
		criteria.MaxSpread = &v
	}

	if deadline := viper.GetDuration("pipeline.deadline"); deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	pipeline := screener.NewPipeline(client, data.NewFXCache(client), budget)
	pipeline.SetChunkSize(viper.GetInt("pipeline.chunk_size"))
	pipeline.SetChunkDelay(viper.GetDuration("pipeline.chunk_delay"))
	pipeline.SetTTMOptions(metrics.TTMOptions{
		WindowMonths:        viper.GetInt("dividend.ttm_months"),
		SplitLookbackMonths: viper.GetInt("dividend.split_lookback_months"),
	})

	return pipeline.Run(ctx, instruments, criteria), nil
}

func loadCatalogs() ([]*data.Instrument, error) {
	instruments := make([]*data.Instrument, 0, 256)

	if fn := viper.GetString("catalog.equities"); fn != "" {
		equities, err := data.LoadCatalog(fn, data.AssetClassEquity)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, equities...)
	}

	if fn := viper.GetString("catalog.bonds"); fn != "" {
		bonds, err := data.LoadCatalog(fn, data.AssetClassBond)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, bonds...)
	}

	if len(instruments) == 0 {
		return nil, data.ErrEmptyCatalog
	}

	start := time.Now()
	log.Info().Int("NumInstruments", len(instruments)).Time("LoadedAt", start).Msg("loaded instrument catalogs")
	return instruments, nil
}
