// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var thresholdsCmd = &cobra.Command{
	Use:   "thresholds",
	Short: "Show the adaptive resource thresholds",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Thresholds []struct {
				ComponentType string  `json:"component_type"`
				Name          string  `json:"name"`
				MemoryMB      float64 `json:"memory_mb"`
				Quota         float64 `json:"quota"`
				LatencyMS     int64   `json:"latency_ms"`
			} `json:"thresholds"`
		}
		if err := apiCall("GET", "/v1/thresholds", nil, &resp); err != nil {
			return err
		}

		if len(resp.Thresholds) == 0 {
			fmt.Println("all components at default thresholds")
			return nil
		}
		for _, t := range resp.Thresholds {
			fmt.Printf("%s:%s  mem=%.1fMB  quota=%.2f  latency=%s\n",
				t.ComponentType, t.Name, t.MemoryMB, t.Quota,
				time.Duration(t.LatencyMS)*time.Millisecond)
		}
		return nil
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show per-component resource usage aggregates",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Usage []struct {
				Key struct {
					Type string `json:"type"`
					Name string `json:"name"`
				} `json:"key"`
				Samples     int           `json:"samples"`
				MeanMemMB   float64       `json:"mean_memory_mb"`
				MeanQuota   float64       `json:"mean_quota"`
				MeanLatency time.Duration `json:"mean_latency"`
				MaxLatency  time.Duration `json:"max_latency"`
			} `json:"usage"`
		}
		if err := apiCall("GET", "/v1/usage", nil, &resp); err != nil {
			return err
		}

		if len(resp.Usage) == 0 {
			fmt.Println("no usage recorded")
			return nil
		}
		for _, u := range resp.Usage {
			fmt.Printf("%s:%s  samples=%d  mem=%.2fMB  quota=%.2f  latency(mean/max)=%s/%s\n",
				u.Key.Type, u.Key.Name, u.Samples, u.MeanMemMB, u.MeanQuota,
				u.MeanLatency, u.MaxLatency)
		}
		return nil
	},
}
