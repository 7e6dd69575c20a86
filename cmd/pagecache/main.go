// Command pagecache opens a page cache and drives it from an interactive shell.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"mit.edu/dsg/pagecache"
	"mit.edu/dsg/pagecache/common"
	"mit.edu/dsg/pagecache/config"
)

const helpText = `Commands:
  new                     allocate a page (left pinned)
  fetch <id>              pin a page, reading it from storage if needed
  unpin <id> [dirty]      release one pin, optionally marking the page dirty
  write <id> <text...>    fetch, overwrite the start of the page, unpin dirty
  read <id> [n]           fetch, print the first n bytes (default 64), unpin
  flush <id>              write a resident page to storage
  flushall                write every resident page to storage
  delete <id>             drop an unpinned page from the pool
  stats                   show frame occupancy
  help
  exit / quit`

// shell executes commands against an open cache and reports to out.
type shell struct {
	pc  *pagecache.PageCache
	out io.Writer
}

func parsePageID(arg string) (common.PageID, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return common.InvalidPageID, fmt.Errorf("bad page id %q", arg)
	}
	return common.PageID(n), nil
}

// processCommand handles a single command line. It returns false when the shell should exit.
func (s *shell) processCommand(args []string) bool {
	if len(args) == 0 {
		return true
	}
	bp := s.pc.BufferPool
	command := strings.ToLower(args[0])

	var id common.PageID
	switch command {
	case "fetch", "unpin", "write", "read", "flush", "delete":
		if len(args) < 2 {
			fmt.Fprintf(s.out, "Error: %s requires a page id.\n", command)
			return true
		}
		var err error
		if id, err = parsePageID(args[1]); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return true
		}
	}

	switch command {
	case "new":
		id, _, err := bp.NewPage()
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return true
		}
		fmt.Fprintf(s.out, "created %s (pinned)\n", id)
	case "fetch":
		if _, err := bp.FetchPage(id); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return true
		}
		pins, _ := bp.PinCount(id)
		fmt.Fprintf(s.out, "fetched %s, pin count %d\n", id, pins)
	case "unpin":
		dirty := len(args) > 2 && strings.EqualFold(args[2], "dirty")
		if !bp.UnpinPage(id, dirty) {
			fmt.Fprintf(s.out, "Error: %s is not resident or not pinned.\n", id)
			return true
		}
		fmt.Fprintf(s.out, "unpinned %s\n", id)
	case "write":
		if len(args) < 3 {
			fmt.Fprintln(s.out, "Error: write requires a page id and text.")
			return true
		}
		frame, err := bp.FetchPage(id)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return true
		}
		text := strings.Join(args[2:], " ")
		frame.PageLatch.Lock()
		n := copy(frame.Bytes[:], text)
		frame.PageLatch.Unlock()
		bp.UnpinPage(id, true)
		fmt.Fprintf(s.out, "wrote %d bytes to %s\n", n, id)
	case "read":
		limit := 64
		if len(args) > 2 {
			n, err := strconv.Atoi(args[2])
			if err != nil || n <= 0 || n > common.PageSize {
				fmt.Fprintf(s.out, "Error: byte count must be in [1, %d].\n", common.PageSize)
				return true
			}
			limit = n
		}
		frame, err := bp.FetchPage(id)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return true
		}
		frame.PageLatch.RLock()
		content := bytes.TrimRight(frame.Bytes[:limit], "\x00")
		fmt.Fprintf(s.out, "%s: %q\n", id, content)
		frame.PageLatch.RUnlock()
		bp.UnpinPage(id, false)
	case "flush":
		ok, err := bp.FlushPage(id)
		switch {
		case err != nil:
			fmt.Fprintf(s.out, "Error: %v\n", err)
		case !ok:
			fmt.Fprintf(s.out, "Error: %s is not resident.\n", id)
		default:
			fmt.Fprintf(s.out, "flushed %s\n", id)
		}
	case "flushall":
		if err := bp.FlushAllPages(); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return true
		}
		fmt.Fprintln(s.out, "flushed all pages")
	case "delete":
		if !bp.DeletePage(id) {
			fmt.Fprintf(s.out, "Error: %s is pinned.\n", id)
			return true
		}
		fmt.Fprintf(s.out, "deleted %s\n", id)
	case "stats":
		resident := bp.ResidentPages()
		fmt.Fprintf(s.out, "frames: %d, free: %d, next page id: %d\n", bp.NumFrames(), bp.NumFree(), int64(bp.NextPageID()))
		for _, pid := range resident {
			pins, _ := bp.PinCount(pid)
			dirty, _ := bp.IsDirty(pid)
			fmt.Fprintf(s.out, "  %s pins=%d dirty=%t\n", pid, pins, dirty)
		}
	case "help":
		fmt.Fprintln(s.out, helpText)
	case "exit", "quit":
		return false
	default:
		fmt.Fprintln(s.out, "Error: Unknown command. Type 'help' for a list of commands.")
	}
	return true
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("new"),
		readline.PcItem("fetch"),
		readline.PcItem("unpin"),
		readline.PcItem("write"),
		readline.PcItem("read"),
		readline.PcItem("flush"),
		readline.PcItem("flushall"),
		readline.PcItem("delete"),
		readline.PcItem("stats"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
	)
}

func main() {
	log.SetFlags(0)

	configPath := flag.String("config", "", "path to a YAML config file")
	dir := flag.String("dir", "", "storage directory (overrides the config)")
	frames := flag.Int("frames", 0, "number of buffer pool frames (overrides the config)")
	k := flag.Int("k", 0, "LRU-K history depth (overrides the config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
	}
	if *dir != "" {
		cfg.Storage.Dir = *dir
	}
	if *frames > 0 {
		cfg.BufferPool.PoolSize = *frames
	}
	if *k > 0 {
		cfg.BufferPool.ReplacerK = *k
	}

	pc, err := pagecache.Open(cfg)
	if err != nil {
		log.Fatalf("Error opening page cache: %v", err)
	}
	defer func() {
		if err := pc.Close(); err != nil {
			log.Printf("Error closing page cache: %v", err)
		}
	}()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pagecache> ",
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Printf("Error starting shell: %v", err)
		return
	}
	defer rl.Close()

	sh := &shell{pc: pc, out: rl.Stdout()}
	fmt.Fprintln(sh.out, "pagecache shell. Type 'help' for commands, 'exit' or 'quit' to leave.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return
			}
			continue
		}
		if err != nil {
			// io.EOF on Ctrl-D
			return
		}
		if !sh.processCommand(strings.Fields(line)) {
			return
		}
	}
}
