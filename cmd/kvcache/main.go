// Package main provides the kvcache CLI: a small tool to inspect and
// maintain a disk cache directory.
/*
 * Copyright (c) 2026, piglikeYoung. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/piglikeYoung/kvcache/cmn"
	"github.com/piglikeYoung/kvcache/kvstore"
	"github.com/urfave/cli"
)

var (
	pathFlag    = cli.StringFlag{Name: "path", Usage: "cache directory", Required: true}
	typeFlag    = cli.StringFlag{Name: "type", Value: "mixed", Usage: "storage type: file | sqlite | mixed"}
	toCountFlag = cli.Int64Flag{Name: "to-count", Value: -1, Usage: "trim to at most this many entries"}
	toSizeFlag  = cli.Int64Flag{Name: "to-size", Value: -1, Usage: "trim to at most this many bytes"}
	rawFlag     = cli.BoolFlag{Name: "raw", Usage: "write value bytes to stdout verbatim"}
)

func main() {
	app := cli.NewApp()
	app.Name = "kvcache"
	app.Usage = "inspect and maintain a kvcache disk directory"
	app.Flags = []cli.Flag{pathFlag, typeFlag}
	app.Commands = []cli.Command{
		{
			Name:   "stats",
			Usage:  "print entry count and total size",
			Action: statsHandler,
		},
		{
			Name:      "get",
			Usage:     "print the value stored under a key",
			ArgsUsage: "KEY",
			Flags:     []cli.Flag{rawFlag},
			Action:    getHandler,
		},
		{
			Name:      "info",
			Usage:     "print entry metadata as JSON",
			ArgsUsage: "KEY [KEY...]",
			Action:    infoHandler,
		},
		{
			Name:   "trim",
			Usage:  "trim LRU entries to the given count and/or size",
			Flags:  []cli.Flag{toCountFlag, toSizeFlag},
			Action: trimHandler,
		},
		{
			Name:   "wipe",
			Usage:  "remove all entries (trash-and-sweep)",
			Action: wipeHandler,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "kvcache: %v\n", err)
		os.Exit(1)
	}
}

func openStore(c *cli.Context) (*kvstore.Store, error) {
	var typ kvstore.StorageType
	switch c.GlobalString("type") {
	case "file":
		typ = kvstore.TypeFile
	case "sqlite":
		typ = kvstore.TypeSQLite
	case "mixed":
		typ = kvstore.TypeMixed
	default:
		return nil, fmt.Errorf("unknown storage type %q", c.GlobalString("type"))
	}
	store, err := kvstore.Open(c.GlobalString("path"), typ)
	if err != nil {
		return nil, err
	}
	store.ErrorLogsEnabled = true
	return store, nil
}

func statsHandler(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()
	fmt.Printf("entries: %d\nsize:    %s\n", store.Count(), cmn.B2S(store.Size(), 2))
	return nil
}

func getHandler(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one KEY argument")
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()
	value, err := store.GetValue(c.Args().First())
	if err != nil {
		return err
	}
	if c.Bool("raw") {
		_, err = os.Stdout.Write(value)
		return err
	}
	fmt.Printf("%x\n", value)
	return nil
}

func infoHandler(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("expected at least one KEY argument")
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()
	items, err := store.GetItemInfos(c.Args())
	if err != nil {
		return err
	}
	out, err := jsoniter.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func trimHandler(c *cli.Context) error {
	toCount, toSize := c.Int64("to-count"), c.Int64("to-size")
	if toCount < 0 && toSize < 0 {
		return fmt.Errorf("nothing to do: pass --to-count and/or --to-size")
	}
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()
	if toCount >= 0 {
		if err := store.TrimToCount(toCount); err != nil {
			return err
		}
	}
	if toSize >= 0 {
		return store.TrimToSize(toSize)
	}
	return nil
}

func wipeHandler(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.RemoveAll(); err != nil {
		return err
	}
	fmt.Println("wiped")
	return nil
}
