package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Options holds the command line configuration of the enclosing driver. The driver reads Src, Out,
// Threads, PrintIRs and LLVM; Verbose and DebugPrint are parsed but nothing reads them.
type Options struct {
	Src       string // Path to input IR/source file, or empty to read stdin.
	Out       string // Path to output assembly file, or empty to write stdout.
	Threads   int    // Worker count for the optimizer's parallel per-function fan-out; see ir/optimizer.Run.
	Verbose   bool   // Set by -vb; no statistics are printed, as nothing reads it.
	PrintIRs  bool   // Set true to dump the CFG before and after the back end runs; its passes are not dumped one by one.
	DebugPrint bool  // Set by --enable-debug-printing; no per-block dumps are printed, as nothing reads it.
	LLVM      bool   // Set true to use the optional LLVM-backed optimizer instead of the no-op one; the x86-64 backend runs either way.
}

// ---------------------
// ----- Constants -----
// ---------------------

const maxThreads = 64 // Maximum number of optimizer worker goroutines.
const appVersion = "olliec 1.0 (x86-64 / System V)"

// ---------------------
// ----- functions -----
// ---------------------

// ParseArgs parses command line arguments into an Options structure.
func ParseArgs() (Options, error) {
	opt := Options{}
	if len(os.Args) < 2 {
		return opt, nil
	}
	args := os.Args[1:]
	for i1 := 0; i1 < len(args); i1++ {
		switch args[i1] {
		case "-h", "--h", "-help", "--help":
			printHelp()
			os.Exit(0)
		case "-o":
			if i1+1 >= len(args) {
				return opt, fmt.Errorf("got flag %s but no argument", args[i1])
			}
			if strings.HasPrefix(args[i1+1], "-") {
				return opt, fmt.Errorf("expected path to output file, got new flag %s", args[i1+1])
			}
			opt.Out = args[i1+1]
			i1++
		case "-t":
			if i1+1 >= len(args) {
				return opt, fmt.Errorf("got flag %s but no argument", args[i1])
			}
			t, err := strconv.Atoi(args[i1+1])
			if err != nil {
				return opt, fmt.Errorf("expected integer thread count, got: %s", args[i1+1])
			}
			if t < 1 || t > maxThreads {
				return opt, fmt.Errorf("thread count must be integer in range [1, %d]", maxThreads)
			}
			opt.Threads = t
			i1++
		case "--print-irs":
			opt.PrintIRs = true
		case "--enable-debug-printing":
			opt.DebugPrint = true
		case "-ll":
			opt.LLVM = true
		case "-v", "--v", "-version", "--version":
			fmt.Println(appVersion)
			os.Exit(0)
		case "-vb":
			opt.Verbose = true
		default:
			if strings.HasPrefix(args[i1], "-") {
				return opt, fmt.Errorf("unexpected flag: %s", args[i1])
			}
			opt.Src = args[i1]
		}
	}
	return opt, nil
}

// printHelp prints a helpful usage message to stdout.
func printHelp() {
	w := tabwriter.NewWriter(os.Stdout, 6, 1, 1, 0, 0)
	_, _ = fmt.Fprintln(w, "-h, -help\tPrints this help message and exits the application.")
	_, _ = fmt.Fprintln(w, "-o\tPath and name of the output assembly file. Defaults to stdout.")
	_, _ = fmt.Fprintf(w, "-t\tNumber of optimizer worker goroutines. Must be in range [1, %d].\n", maxThreads)
	_, _ = fmt.Fprintln(w, "--print-irs\tDump the CFG before and after the back end runs (not between its passes).")
	_, _ = fmt.Fprintln(w, "--enable-debug-printing\tAccepted; prints no per-block dumps.")
	_, _ = fmt.Fprintln(w, "-ll\tUse the optional LLVM-backed optimizer before the x86-64 backend.")
	_, _ = fmt.Fprintln(w, "-v, -version\tPrints application version and exits the application.")
	_, _ = fmt.Fprintln(w, "-vb\tAccepted; prints no compiler statistics.")
	_ = w.Flush()
}
