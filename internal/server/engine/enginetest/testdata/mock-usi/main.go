//go:build ignore

// Command mock-usi simulates a USI shogi engine for integration tests.
//
// Environment variables control its behaviour:
//
//	MOCK_USI_MODE=infinite     stream info lines until stop, then bestmove
//	MOCK_USI_MODE=silent       accept go but never answer it, not even after stop
//	MOCK_USI_MODE=crash-on-go  print one info line after go, then exit 3
//	MOCK_USI_MODE=long-line    answer go with one line longer than the reader accepts, then hang
//	MOCK_USI_MODE=no-usiok     never finish the handshake
//	MOCK_USI_MODE=exit-on-boot exit 1 before reading anything
//	MOCK_USI_BESTMOVE=<move>   bestmove token (default 7g7f)
//	MOCK_USI_SCORE=<score>     raw score, e.g. "cp 100", "mate -3" or "mate -" (default "cp 100")
//	MOCK_USI_DELAY=<duration>  think time before bestmove (default 0)
//	MOCK_USI_IGNORE_QUIT=1     keep running after quit
//	MOCK_USI_LOG=<path>        append every command received; a go received while
//	                           searching is also recorded as a VIOLATION line
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	outMu sync.Mutex
	logMu sync.Mutex
)

func say(format string, args ...any) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

func record(line string) {
	path := os.Getenv("MOCK_USI_LOG")
	if path == "" {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}

type search struct {
	stop chan struct{}
	done chan struct{}
}

func main() {
	mode := os.Getenv("MOCK_USI_MODE")
	if mode == "exit-on-boot" {
		os.Exit(1)
	}
	bestmove := envOr("MOCK_USI_BESTMOVE", "7g7f")
	score := envOr("MOCK_USI_SCORE", "cp 100")
	delay, _ := time.ParseDuration(os.Getenv("MOCK_USI_DELAY"))
	multipv := 1

	var current *search
	searching := func() bool {
		if current == nil {
			return false
		}
		select {
		case <-current.done:
			return false
		default:
			return true
		}
	}

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		record(line)
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "usi":
			say("id name mock-usi")
			say("id author test")
			say("option name USI_Hash type spin default 64 min 1 max 1024")
			if mode != "no-usiok" {
				say("usiok")
			}
		case "setoption":
			if len(fields) >= 5 && fields[2] == "MultiPV" {
				if n, err := strconv.Atoi(fields[4]); err == nil {
					multipv = n
				}
			}
		case "isready":
			say("readyok")
		case "usinewgame", "position":
		case "go":
			if searching() {
				record("VIOLATION go while searching")
			}
			k := multipv
			for i := 1; i+1 < len(fields); i++ {
				if fields[i] == "multipv" {
					if n, err := strconv.Atoi(fields[i+1]); err == nil {
						k = n
					}
				}
			}
			if mode == "long-line" {
				say("info string %s", strings.Repeat("x", 1<<20+64))
				continue
			}
			if mode == "crash-on-go" {
				say("info depth 1 multipv 1 score %s pv %s", score, bestmove)
				os.Exit(3)
			}
			s := &search{stop: make(chan struct{}), done: make(chan struct{})}
			current = s
			go run(s, mode, k, score, bestmove, delay)
		case "stop":
			if searching() {
				close(current.stop)
				<-current.done
			}
		case "quit":
			if os.Getenv("MOCK_USI_IGNORE_QUIT") == "1" {
				continue
			}
			os.Exit(0)
		}
	}
}

func run(s *search, mode string, multipv int, score, bestmove string, delay time.Duration) {
	defer close(s.done)
	switch mode {
	case "silent":
		<-s.stop
		return
	case "infinite":
		for depth := 1; ; depth++ {
			infos(depth, multipv, score, bestmove)
			select {
			case <-s.stop:
				say("bestmove %s", bestmove)
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
	}

	say("info string mock thinking")
	say("info depth 1 nodes 10 nps 1000")
	infos(1, multipv, score, bestmove)
	select {
	case <-s.stop:
	case <-time.After(delay):
		infos(2, multipv, score, bestmove)
	}
	say("bestmove %s ponder 3c3d", bestmove)
}

// infos prints one line per multipv slot; lower slots score 10 points worse.
// A non-numeric value such as the bare sign of "mate -" is printed as given.
func infos(depth, multipv int, score, bestmove string) {
	kind, raw := "cp", "100"
	if parts := strings.Fields(score); len(parts) == 2 {
		kind, raw = parts[0], parts[1]
	}
	value, err := strconv.Atoi(raw)
	for k := 1; k <= multipv; k++ {
		text := raw
		if err == nil {
			v := value
			if kind == "cp" {
				v -= 10 * (k - 1)
			}
			text = strconv.Itoa(v)
		}
		say("info depth %d seldepth %d multipv %d score %s %s nodes %d pv %s 3c3d", depth, depth+2, k, kind, text, depth*100, bestmove)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
