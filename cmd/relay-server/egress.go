package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-relaymesh/internal/core/relay"
	"github.com/dep2p/go-relaymesh/internal/core/relaynet"
)

// egressCmd 离线打印出口分配
var egressCmd = &cobra.Command{
	Use:   "egress",
	Short: "打印出口分配（不启动网络）",
	Long: `egress 按与启动时相同的算法计算每个中继每个服务的出口集合，
并打印每个实例被选中的次数与理论上限。`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := relaynet.DefaultConfig()
		cfg.NumRelays = flags.Relays
		cfg.NumInstancesPerService = flags.Instances
		cfg.KValue = flags.KValue
		cfg.ServiceNames = flags.Services
		if err := cfg.Validate(); err != nil {
			return err
		}
		printEgress(cmd.OutOrStdout(), cfg, relay.NewSelector())
		return nil
	},
}

func printEgress(out io.Writer, cfg relaynet.Config, sel *relay.Selector) {
	relays := make([]string, cfg.NumRelays)
	for i := range relays {
		relays[i] = relaynet.Component{Role: relaynet.RoleRelay, Index: i}.ID()
	}

	bound := relay.LoadBound(cfg.NumRelays, cfg.NumInstancesPerService, cfg.KValue)
	for _, svc := range cfg.ServiceNames {
		instances := make([]string, cfg.NumInstancesPerService)
		for i := range instances {
			instances[i] = relaynet.Component{Role: relaynet.RoleInstance, Service: svc, Index: i}.ID()
		}

		assign := sel.Assign(relays, svc, instances, cfg.KValue)
		load := make(map[string]int, len(instances))
		fmt.Fprintf(out, "%s\n", svc)
		for _, r := range relays {
			fmt.Fprintf(out, "  %-10s → %v\n", r, assign[r])
			for _, id := range assign[r] {
				load[id]++
			}
		}

		ids := make([]string, 0, len(load))
		for id := range load {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Fprintf(out, "  负载（上限 %d）:", bound)
		for _, id := range ids {
			fmt.Fprintf(out, " %s=%d", id, load[id])
		}
		fmt.Fprintln(out)
	}
}
