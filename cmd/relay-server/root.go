package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-relaymesh"
)

// serverFlags 命令行标志
type serverFlags struct {
	ConfigFile  string
	Preset      string
	Relays      int
	Instances   int
	KValue      int
	Services    []string
	Host        string
	ForwardRate float64
	LogLevel    string
	LogFile     string
	MetricsAddr string
	StatsEvery  time.Duration
}

var flags serverFlags

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "relay-server",
	Short: "启动本地中继网格",
	Long: `relay-server 启动一组服务实例与中继。

每个中继只把某个服务的调用转发给该服务的 k 个实例（出口集合），
出口集合由稳定哈希计算，在实例间均匀分摊负载。

显式给出的标志覆盖配置文件或预设中的同名字段。`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := buildOptions(cmd)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

// versionCmd 打印版本
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "打印版本信息",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), relaymesh.VersionInfo())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.IntVar(&flags.Relays, "relays", 3, "中继数量")
	pf.IntVar(&flags.Instances, "instances", 1, "每个服务的实例数量")
	pf.IntVar(&flags.KValue, "k", 5, "每个中继每个服务的出口数")
	pf.StringSliceVar(&flags.Services, "services", []string{"bob", "steve", "mary"}, "服务名（逗号分隔）")

	f := rootCmd.Flags()
	f.StringVarP(&flags.ConfigFile, "config", "c", "", "JSON 配置文件")
	f.StringVar(&flags.Preset, "preset", relaymesh.PresetNameLocal, "预设: local|test|server")
	f.StringVar(&flags.Host, "host", "127.0.0.1", "监听主机")
	f.Float64Var(&flags.ForwardRate, "forward-rate", 0, "每个服务每秒转发上限（0 = 不限制）")
	f.StringVar(&flags.LogLevel, "log-level", "info", "日志级别: debug|info|warn|error")
	f.StringVar(&flags.LogFile, "log-file", "", "日志文件（按大小轮转）")
	f.StringVar(&flags.MetricsAddr, "metrics-addr", "", "/metrics 监听地址，例如 :9464")
	f.DurationVar(&flags.StatsEvery, "stats-interval", 30*time.Second, "统计报告间隔（0 = 关闭）")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(egressCmd)
}

// buildOptions 先应用配置文件或预设，再应用显式给出的标志
func buildOptions(cmd *cobra.Command) ([]relaymesh.Option, error) {
	var opts []relaymesh.Option
	if flags.ConfigFile != "" {
		opts = append(opts, relaymesh.WithConfigFile(flags.ConfigFile))
	} else {
		preset, ok := relaymesh.PresetByName(flags.Preset)
		if !ok {
			return nil, fmt.Errorf("unknown preset %q", flags.Preset)
		}
		opts = append(opts, relaymesh.WithPreset(preset))
	}

	changed := func(name string) bool {
		return cmd.Flags().Changed(name)
	}

	if changed("relays") {
		opts = append(opts, relaymesh.WithRelays(flags.Relays))
	}
	if changed("instances") {
		opts = append(opts, relaymesh.WithInstancesPerService(flags.Instances))
	}
	if changed("k") {
		opts = append(opts, relaymesh.WithKValue(flags.KValue))
	}
	if changed("services") {
		opts = append(opts, relaymesh.WithServices(flags.Services...))
	}
	if changed("host") {
		opts = append(opts, relaymesh.WithHost(flags.Host))
	}
	if changed("forward-rate") {
		opts = append(opts, relaymesh.WithForwardRate(flags.ForwardRate, relayBurst(flags.ForwardRate)))
	}
	if changed("log-level") {
		opts = append(opts, relaymesh.WithLogLevel(flags.LogLevel))
	}
	if changed("log-file") {
		opts = append(opts, relaymesh.WithLogFile(flags.LogFile))
	}
	if changed("metrics-addr") {
		opts = append(opts, relaymesh.WithMetrics(true, flags.MetricsAddr))
	}
	return opts, nil
}

// relayBurst 突发量取一秒的配额，至少为 1
func relayBurst(rate float64) int {
	if rate < 1 {
		return 1
	}
	return int(rate)
}

// serve 启动网格并等待信号
func serve(parent context.Context, out io.Writer, opts []relaymesh.Option) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mesh, err := relaymesh.Start(ctx, opts...)
	if err != nil {
		return fmt.Errorf("启动中继网格失败: %w", err)
	}
	defer func() { _ = mesh.Close() }()

	printMeshInfo(out, mesh)
	if flags.StatsEvery > 0 {
		go reportStats(ctx, out, mesh, flags.StatsEvery)
	}

	<-ctx.Done()
	fmt.Fprintln(out, "\n正在关闭中继网格...")
	return nil
}

// printMeshInfo 打印网格信息
func printMeshInfo(out io.Writer, mesh *relaymesh.Mesh) {
	n := mesh.Network()
	cfg := n.Config()

	fmt.Fprintln(out, "╔══════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║                 relaymesh 中继网格                    ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════════════╝")
	fmt.Fprintf(out, "中继: %d  每服务实例: %d  k: %d\n", cfg.NumRelays, cfg.NumInstancesPerService, cfg.KValue)
	fmt.Fprintln(out)

	for i, node := range n.Relays() {
		fmt.Fprintf(out, "relay-%d  %s\n", i, node.HostPort())
		for _, svc := range n.ServiceNames() {
			fmt.Fprintf(out, "    %-12s → %v\n", svc, node.ExitsFor(svc))
		}
	}
	fmt.Fprintln(out)

	for _, svc := range n.ServiceNames() {
		fmt.Fprintf(out, "%-12s %v\n", svc, n.InstanceHostPorts(svc))
	}

	fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(out, "按 Ctrl+C 停止")
}

// reportStats 定期报告限流统计
func reportStats(ctx context.Context, out io.Writer, mesh *relaymesh.Mesh, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i, node := range mesh.Network().Relays() {
				stats := node.Limiter().Stats()
				fmt.Fprintf(out, "[Stats] relay-%d 服务: %d 拒绝: %v\n", i, len(stats.Services), stats.Denied)
			}
		}
	}
}
