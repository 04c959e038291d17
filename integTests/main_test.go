// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package integTests

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xcherryio/creditbridge/cmd/server/bootstrap"
	"github.com/xcherryio/creditbridge/config"
)

func TestMain(m *testing.M) {
	flag.Parse()
	gin.SetMode(gin.TestMode)
	fmt.Printf("start running integ test, useLocalServer: %v, devEngineAddress: %v, apiAddress: %v \n",
		*useLocalServer, *devEngineAddress, *apiAddress)

	var shutdownFunc bootstrap.GracefulShutdown
	rootCtx, rootCtxCancelFunc := context.WithCancel(context.Background())

	if !*useLocalServer {
		cfg := config.Config{
			Log: config.Logger{
				Level: "info",
			},
			WorkerId: "integ-bridge",
			TaskSource: config.TaskSourceConfig{
				BaseURL: "http://" + *devEngineAddress + "/engine-rest",
			},
			Subscription: config.SubscriptionConfig{
				AsyncResponseTimeout: time.Second,
				PollInterval:         100 * time.Millisecond,
			},
			ApiService: config.ApiServiceConfig{
				HttpServer: config.HttpServerConfig{
					Address:      *apiAddress,
					ReadTimeout:  5 * time.Second,
					WriteTimeout: 60 * time.Second,
				},
			},
			DevEngine: &config.DevEngineConfig{
				HttpServer: config.HttpServerConfig{
					Address:      *devEngineAddress,
					ReadTimeout:  5 * time.Second,
					WriteTimeout: 60 * time.Second,
				},
			},
		}

		var err error
		shutdownFunc, err = bootstrap.StartCreditBridgeServer(rootCtx, &cfg, map[string]bool{
			bootstrap.ApiServiceName:          true,
			bootstrap.ExternalTaskServiceName: true,
			bootstrap.ConsumerServiceName:     true,
			bootstrap.DevEngineServiceName:    true,
		})
		if err != nil {
			panic(err)
		}
	}

	waitForListening(*devEngineAddress)
	waitForListening(*apiAddress)

	resultCode := m.Run()
	fmt.Println("finished running integ test with status code", resultCode)
	rootCtxCancelFunc()
	if shutdownFunc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := shutdownFunc(ctx)
		cancel()
		if err != nil {
			fmt.Println("shutdown error:", err)
		}
	}
	os.Exit(resultCode)
}

// the servers listen in background goroutines
func waitForListening(address string) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", address, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	panic(fmt.Sprintf("server at %v is not listening", address))
}
