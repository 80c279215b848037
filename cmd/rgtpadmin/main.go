// rgtpadmin is a spool inspection and maintenance CLI: list and dump
// index records, cat an item file, list registered users, and compact
// the user database. It is ambient tooling alongside the daemon, not
// the full user-database administration program the specification
// treats as an external collaborator — grounded in the teacher's
// jamutil (cmd/jamutil/main.go), a companion CLI for a message-base
// format with the same "first argument picks a subcommand, each
// subcommand owns its own flag.FlagSet" shape.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/stlalpha/rgtpd/internal/itemstore"
	"github.com/stlalpha/rgtpd/internal/rgtpindex"
	"github.com/stlalpha/rgtpd/internal/spool"
	"github.com/stlalpha/rgtpd/internal/userdb"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "--version", "-version":
		fmt.Printf("rgtpadmin %s\n", version)
	case "--help", "-h", "help":
		printUsage()
	case "stats":
		cmdStats(os.Args[2:])
	case "index":
		cmdIndex(os.Args[2:])
	case "item":
		cmdItem(os.Args[2:])
	case "users":
		cmdUsers(os.Args[2:])
	case "tidy-users":
		cmdTidyUsers(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `rgtpadmin - RGTP spool inspection and maintenance

Usage:
  rgtpadmin stats -spool <dir>
  rgtpadmin index -spool <dir> [-from <hex-timestamp>]
  rgtpadmin item -spool <dir> <item-id>
  rgtpadmin users -spool <dir>
  rgtpadmin tidy-users -spool <dir> [-slots <n>] -new-slots <n>`)
}

func spoolFlag(fs *flag.FlagSet) *string {
	return fs.String("spool", "./spool", "spool root directory")
}

func cmdStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	spoolDir := spoolFlag(fs)
	fs.Parse(args)

	sp := spool.New(*spoolDir)
	ix := rgtpindex.Open(sp.Index())

	var count int
	err := ix.WithReadLock(func(f *os.File) error {
		n, err := rgtpindex.Count(f)
		count = n
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rgtpadmin: reading index: %v\n", err)
		os.Exit(1)
	}

	entries, err := os.ReadDir(sp.ItemDir())
	itemCount := 0
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				itemCount++
			}
		}
	}

	fmt.Printf("spool:        %s\n", sp.Root)
	fmt.Printf("index records: %d\n", count)
	fmt.Printf("item files:    %d\n", itemCount)
}

func cmdIndex(args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	spoolDir := spoolFlag(fs)
	from := fs.String("from", "", "only show records at or after this hex timestamp")
	fs.Parse(args)

	var fromTS uint64
	if *from != "" {
		v, err := strconv.ParseUint(*from, 16, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rgtpadmin: bad -from value %q: %v\n", *from, err)
			os.Exit(1)
		}
		fromTS = v
	}

	sp := spool.New(*spoolDir)
	ix := rgtpindex.Open(sp.Index())

	err := ix.WithReadLock(func(f *os.File) error {
		n, err := rgtpindex.Count(f)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			rec, err := rgtpindex.ReadAt(f, i)
			if err != nil {
				return err
			}
			if uint64(rec.Timestamp) < fromTS {
				continue
			}
			fmt.Printf("%08X %c %-8s %-16s %s\n", rec.Sequence, rec.Type, rec.ItemID, rec.UserID, rec.Subject)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rgtpadmin: reading index: %v\n", err)
		os.Exit(1)
	}
}

func cmdItem(args []string) {
	fs := flag.NewFlagSet("item", flag.ExitOnError)
	spoolDir := spoolFlag(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "rgtpadmin: item requires exactly one item id")
		os.Exit(1)
	}

	sp := spool.New(*spoolDir)
	path := sp.Item(fs.Arg(0))

	var data []byte
	err := itemstore.WithReadLock(path, func(f *os.File) error {
		d, err := itemstore.ReadAll(f)
		data = d
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rgtpadmin: reading %s: %v\n", path, err)
		os.Exit(1)
	}
	os.Stdout.Write(data)
}

func cmdUsers(args []string) {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	spoolDir := spoolFlag(fs)
	slots := fs.Int("slots", 4093, "user database slot count (must match the live daemon's configured value)")
	fs.Parse(args)

	sp := spool.New(*spoolDir)
	db, err := userdb.Open(sp.UserDatabase(), *slots)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rgtpadmin: opening user database: %v\n", err)
		os.Exit(1)
	}

	entries, err := db.All()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rgtpadmin: listing users: %v\n", err)
		os.Exit(1)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })

	for _, e := range entries {
		disabled := ""
		if e.Disabled {
			disabled = " (disabled)"
		}
		fmt.Printf("%-40s %-6s ident=%d%s\n", e.UserID, e.Access, e.Ident, disabled)
	}
}

func cmdTidyUsers(args []string) {
	fs := flag.NewFlagSet("tidy-users", flag.ExitOnError)
	spoolDir := spoolFlag(fs)
	curSlots := fs.Int("slots", 4093, "current user database slot count")
	newSlots := fs.Int("new-slots", 0, "target slot count (required)")
	fs.Parse(args)
	if *newSlots <= 0 {
		fmt.Fprintln(os.Stderr, "rgtpadmin: -new-slots is required and must be positive")
		os.Exit(1)
	}

	sp := spool.New(*spoolDir)
	db, err := userdb.Open(sp.UserDatabase(), *curSlots)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rgtpadmin: opening user database: %v\n", err)
		os.Exit(1)
	}
	if err := db.Tidy(*newSlots); err != nil {
		fmt.Fprintf(os.Stderr, "rgtpadmin: tidy: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("user database rehashed from %d to %d slots\n", *curSlots, *newSlots)
}
