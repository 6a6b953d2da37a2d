/*
Usage:

	sendvote -addr 127.0.0.1:8192 -token <token> -username Steve
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/danl5/govotifier/pkg/client"
	"github.com/danl5/govotifier/pkg/model"
)

var (
	// address of the votifier server
	address = flag.String("addr", "127.0.0.1:8192", "votifier server address")
	// token shared with the votifier server
	token = flag.String("token", "", "votifier token")

	username    = flag.String("username", "", "player that voted")
	serviceName = flag.String("service", "TestVote", "vote site name")
	voteAddress = flag.String("address", "127.0.0.1", "address the vote was cast from")
	timeout     = flag.Duration("timeout", 10*time.Second, "exchange timeout")
)

func main() {
	flag.Parse()

	if *token == "" || *username == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	status, err := client.Send(ctx, *address, *token, model.Vote{
		ServiceName: *serviceName,
		Username:    *username,
		Address:     *voteAddress,
		Timestamp:   strconv.FormatInt(time.Now().UnixMilli(), 10),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "send vote:", err)
		os.Exit(1)
	}

	fmt.Println("status:", status)
	if status != model.StatusOk {
		os.Exit(1)
	}
}
