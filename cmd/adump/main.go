// adump is a CLI tool for inspecting aidb store files.
//
// Usage:
//
//	adump <filename>                     # store info and table defs
//	adump -t users <filename>            # browse a table interactively
//	adump -t users -l <filename>         # list mode (print all rows)
//	adump -t users -l -n 20 <filename>   # list first 20 rows
//	adump -b 3 <filename>                # hex dump of one block
//
// The block size defaults to 4096; override it with -s or the
// AIDB_BLOCK_SIZE variable, read from the environment or a .env file.
//
// Interactive mode:
//
//	j/↓    scroll down
//	k/↑    scroll up
//	g      jump to first
//	G      jump to last
//	/      search row (prefix match on the printed form)
//	q/Esc  quit
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/joho/godotenv"

	"github.com/NKID00/aidb"
	"github.com/NKID00/aidb/block"
	"github.com/NKID00/aidb/disk"
	"github.com/NKID00/aidb/store"
)

func main() {
	godotenv.Load()

	blockSize := 4096
	if raw := os.Getenv("AIDB_BLOCK_SIZE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: AIDB_BLOCK_SIZE: %v\n", err)
			os.Exit(1)
		}
		blockSize = n
	}

	sizeFlag := flag.Int("s", blockSize, "block size of the store file")
	tableFlag := flag.String("t", "", "table to browse")
	listFlag := flag.Bool("l", false, "list mode (non-interactive)")
	countFlag := flag.Int("n", 0, "number of rows (0 = all)")
	blockFlag := flag.Int64("b", -1, "dump a single block and exit")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: adump [-s size] [-t table [-l] [-n count]] [-b block] <filename>")
		os.Exit(1)
	}
	filename := flag.Arg(0)

	if *blockFlag >= 0 {
		dumpBlock(filename, *sizeFlag, aidb.BlockIndex(*blockFlag))
		return
	}

	s := openStore(filename, *sizeFlag)
	defer s.Close()

	switch {
	case *tableFlag == "":
		printInfo(s)
	case *listFlag:
		listRows(s, *tableFlag, *countFlag)
	default:
		browse(s, *tableFlag)
	}
}

func openStore(filename string, blockSize int) *store.Store {
	file, err := disk.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	s, err := store.Open(file, blockSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return s
}

func dumpBlock(filename string, blockSize int, index aidb.BlockIndex) {
	file, err := disk.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	dev, err := block.New(file, blockSize, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	buf := make([]byte, blockSize)
	if err := dev.Read(index, buf); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("block %d:\n", index)
	spew.Dump(buf)
}

func printInfo(s *store.Store) {
	info := s.Info()
	fmt.Printf("store:  %s\n", info.StoreID)
	fmt.Printf("blocks: %d × %d bytes (%d free)\n", info.BlockCount, info.BlockSize, info.FreeBlocks)
	fmt.Printf("tables: %d\n", info.Tables)
	fmt.Printf("io:     %d reads, %d writes, %d grows\n", info.IO.Reads, info.IO.Writes, info.IO.Grows)
	for _, name := range s.Tables() {
		def, err := s.Describe(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()
		spew.Dump(def)
	}
}

func listRows(s *store.Store, table string, count int) {
	n := 0
	for r, err := range s.Scan(table) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if count > 0 && n >= count {
			break
		}
		fmt.Println(formatRow(r))
		n++
	}
}

func formatRow(r store.Row) string {
	out := fmt.Sprintf("%d:%d |", r.Ptr.Block(), r.Ptr.Slot())
	for _, v := range r.Values {
		out += " " + display(v.String(), 60)
	}
	return out
}

// display truncates s for a single output line.
func display(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) > maxLen-3 {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
