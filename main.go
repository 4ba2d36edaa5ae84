package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ceyewan/buzzlink/bootstrap"
	"github.com/ceyewan/buzzlink/server"
)

func main() {
	var module string
	flag.StringVar(&module, "module", "", "assign run module: server, init")
	flag.Parse()

	if module == "" {
		fmt.Println("error: module param required! Available: server, init")
		os.Exit(1)
	}

	fmt.Printf("🚀 Starting Buzzlink %s...\n", module)

	// 各个组件负责自己的配置加载
	switch module {
	case "server":
		s, err := server.New()
		if err != nil {
			fmt.Printf("❌ Failed to start server: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()
		if err := s.Run(); err != nil {
			fmt.Printf("❌ Server error: %v\n", err)
			os.Exit(1)
		}
		waitForSignal()

	case "init":
		if err := bootstrap.Run(); err != nil {
			fmt.Printf("❌ Database initialization failed: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Printf("❌ Unknown module: %s\n", module)
		fmt.Println("Available modules: server, init")
		os.Exit(1)
	}
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit

	fmt.Println("👋 Service exiting")
}
