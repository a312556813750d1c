// Command juleactl is a debug client for exercising a running
// juleastore daemon by hand: one subcommand each for the CREATE, DELETE,
// STATUS and STATISTICS operations (READ and WRITE have none), JSON
// output for anything that returns structured data.
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package main

import (
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/pflag"

	"github.com/juleastore/juleastore/client"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "create":
		err = runCreate(args)
	case "delete":
		err = runDelete(args)
	case "status":
		err = runStatus(args)
	case "stats":
		err = runStats(args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "juleactl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: juleactl <create|delete|status|stats> [flags]")
}

func runCreate(args []string) error {
	fs := pflag.NewFlagSet("create", pflag.ExitOnError)
	addr := fs.String("addr", "localhost:4711", "daemon address")
	store := fs.String("store", "", "store name")
	collection := fs.String("collection", "", "collection name")
	items := fs.StringSlice("items", nil, "comma-separated item names")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := client.Dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Create(*store, *collection, *items)
}

func runDelete(args []string) error {
	fs := pflag.NewFlagSet("delete", pflag.ExitOnError)
	addr := fs.String("addr", "localhost:4711", "daemon address")
	store := fs.String("store", "", "store name")
	collection := fs.String("collection", "", "collection name")
	items := fs.StringSlice("items", nil, "comma-separated item names")
	ack := fs.Bool("ack", true, "wait for a SAFETY_NETWORK acknowledgement")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := client.Dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Delete(*store, *collection, *items, *ack)
}

func runStatus(args []string) error {
	fs := pflag.NewFlagSet("status", pflag.ExitOnError)
	addr := fs.String("addr", "localhost:4711", "daemon address")
	store := fs.String("store", "", "store name")
	collection := fs.String("collection", "", "collection name")
	items := fs.StringSlice("items", nil, "comma-separated item names")
	withSize := fs.Bool("size", true, "request object size")
	withMtime := fs.Bool("mtime", true, "request modification time")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var flags uint32
	if *withSize {
		flags |= 1
	}
	if *withMtime {
		flags |= 1 << 1
	}

	queries := make([]client.StatusQuery, 0, len(*items))
	for _, item := range *items {
		queries = append(queries, client.StatusQuery{Item: strings.TrimSpace(item), Flags: flags})
	}

	c, err := client.Dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	results, err := c.Status(*store, *collection, queries)
	if err != nil {
		return err
	}
	return printJSON(results)
}

func runStats(args []string) error {
	fs := pflag.NewFlagSet("stats", pflag.ExitOnError)
	addr := fs.String("addr", "localhost:4711", "daemon address")
	global := fs.Bool("global", true, "request the process-wide snapshot instead of this connection's own counters")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := client.Dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	counters, err := c.Statistics(*global)
	if err != nil {
		return err
	}
	return printJSON(counters)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
