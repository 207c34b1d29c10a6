// Package main 提供独立的中继网格服务器
//
// 在本机启动一组服务实例与中继，打印中继地址后等待中断信号。
//
// 使用方法:
//
//	relay-server --relays 3 --k 5 --services bob,steve,mary
//	relay-server --config relaymesh.json
//	relay-server egress --relays 5 --instances 4 --k 2
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ 错误: %v\n", err)
		os.Exit(1)
	}
}
