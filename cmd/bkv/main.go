// Command bkv is an interactive REPL over a bkv.Store: put, get, del, iter
// and stats, one command per line.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"bkv"
	"bkv/internal/config"
)

var (
	flagDB        = flag.String("db", "bkv.db", "database file path")
	flagConfig    = flag.String("config", "", "optional YAML config file (page_size, min_degree, cache_capacity, path)")
	flagPageSize  = flag.Int("page-size", 0, "page size in bytes (0 = default/config)")
	flagMinDegree = flag.Int("min-degree", 0, "B-tree minimum-key degree t (0 = default/config)")
)

func main() {
	flag.Parse()

	opts := bkv.DefaultOptions()
	path := *flagDB
	if *flagConfig != "" {
		c, err := config.Load(*flagConfig)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		path = c.Path
		opts.PageSize = c.PageSize
		opts.MinDegree = c.MinDegree
		opts.CacheCapacity = c.CacheCapacity
	}
	if *flagPageSize > 0 {
		opts.PageSize = *flagPageSize
	}
	if *flagMinDegree > 0 {
		opts.MinDegree = *flagMinDegree
	}

	store, err := bkv.Open(path, opts)
	if err != nil {
		log.Fatalf("open %s: %v", path, err)
	}
	defer store.Close()

	runREPL(store, path)
}

func runREPL(store *bkv.Store, path string) {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 1024), 1024*1024)

	interactive := false
	if fi, err := os.Stdin.Stat(); err == nil {
		interactive = (fi.Mode() & os.ModeCharDevice) != 0
	}
	if interactive {
		fmt.Printf("bkv %s. Commands: put k v | get k | del k | iter [from] | stats | quit\n", path)
	}

	for {
		if interactive {
			fmt.Print("bkv> ")
		}
		if !sc.Scan() {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := dispatch(store, line); err != nil {
			fmt.Println("ERR:", err)
		}
	}
}

func dispatch(store *bkv.Store, line string) error {
	fields := strings.Fields(line)
	cmd := fields[0]

	switch cmd {
	case "put":
		if len(fields) < 3 {
			return fmt.Errorf("usage: put key value")
		}
		return store.Put([]byte(fields[1]), []byte(strings.Join(fields[2:], " ")))

	case "get":
		if len(fields) != 2 {
			return fmt.Errorf("usage: get key")
		}
		v, err := store.Get([]byte(fields[1]))
		if errors.Is(err, bkv.ErrNotFound) {
			fmt.Println("(not found)")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(string(v))
		return nil

	case "del":
		if len(fields) != 2 {
			return fmt.Errorf("usage: del key")
		}
		err := store.Delete([]byte(fields[1]))
		if errors.Is(err, bkv.ErrNotFound) {
			fmt.Println("(not found)")
			return nil
		}
		return err

	case "iter":
		it := store.Iterator()
		var err error
		if len(fields) >= 2 {
			err = it.Seek([]byte(fields[1]))
		} else {
			err = it.SeekFirst()
		}
		if err != nil {
			return err
		}
		for it.Valid() {
			fmt.Printf("%s = %s\n", it.Key(), it.Value())
			if err := it.Next(); err != nil {
				return err
			}
		}
		return nil

	case "stats":
		st := store.Stats()
		fmt.Printf("total_pages=%d cached_pages=%d free_list_head=%d root_page=%d\n",
			st.TotalPages, st.CachedPages, st.FreeListHead, st.RootPage)
		return nil

	case "quit", "exit":
		os.Exit(0)
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
