// Command bkvbench drives fillseq/fillrandom/readseq/readrandom workloads
// against a bkv.Store and reports throughput, in the spirit of
// original_source/db_bench.cpp (mostly commented out there; implemented
// here for real).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"bkv"
)

var (
	flagDB         = flag.String("db", "", "database file path (temp file if empty)")
	flagBenchmarks = flag.String("benchmarks", "fillseq,readseq,fillrandom,readrandom", "comma-separated workload list")
	flagNum        = flag.Int("num", 10000, "number of keys per workload")
	flagValueSize  = flag.Int("value_size", 100, "value size in bytes")
)

func main() {
	flag.Parse()

	dbPath := *flagDB
	if dbPath == "" {
		f, err := os.CreateTemp("", "bkvbench-*.db")
		if err != nil {
			log.Fatalf("create temp db: %v", err)
		}
		dbPath = f.Name()
		f.Close()
		defer os.Remove(dbPath)
	}

	store, err := bkv.Open(dbPath, bkv.DefaultOptions())
	if err != nil {
		log.Fatalf("open %s: %v", dbPath, err)
	}
	defer store.Close()

	value := make([]byte, *flagValueSize)
	for i := range value {
		value[i] = byte('a' + i%26)
	}

	var seqKeys, randKeys [][]byte
	for i := 0; i < *flagNum; i++ {
		seqKeys = append(seqKeys, []byte(fmt.Sprintf("key%012d", i)))
		randKeys = append(randKeys, []byte(uuid.NewString()))
	}

	for _, name := range splitCSV(*flagBenchmarks) {
		switch name {
		case "fillseq":
			runBench(name, *flagNum, func() error { return fillAll(store, seqKeys, value) })
		case "fillrandom":
			runBench(name, *flagNum, func() error { return fillAll(store, randKeys, value) })
		case "readseq":
			runBench(name, *flagNum, func() error { return readAll(store, seqKeys) })
		case "readrandom":
			runBench(name, *flagNum, func() error { return readAll(store, randKeys) })
		default:
			log.Printf("unknown benchmark %q, skipping", name)
		}
	}
}

func fillAll(store *bkv.Store, keys [][]byte, value []byte) error {
	for _, k := range keys {
		if err := store.Put(k, value); err != nil {
			return err
		}
	}
	return nil
}

func readAll(store *bkv.Store, keys [][]byte) error {
	for _, k := range keys {
		if _, err := store.Get(k); err != nil && err != bkv.ErrNotFound {
			return err
		}
	}
	return nil
}

func runBench(name string, n int, f func() error) {
	start := time.Now()
	if err := f(); err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	elapsed := time.Since(start)
	opsPerSec := float64(n) / elapsed.Seconds()
	meanLatency := elapsed / time.Duration(n)
	fmt.Printf("%-12s %8d ops  %10.2f ops/sec  %10s mean latency\n", name, n, opsPerSec, meanLatency)
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
