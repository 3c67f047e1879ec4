/*
Coco reads an attributed EBNF grammar description and builds the in-memory
scanner automaton and parser analysis that a target-language emitter would
print source from. Emitter back-ends, which turn the results into actual
scanner/parser source files from frame templates, are not part of the core
and are not invoked by this command: -frames and -namespace are accepted
and only echoed in a note on stderr (internal/coco/emit is not called), and
-o names the directory trace.txt is written to.

Usage:

	coco <grammar-file> [flags]

The flags are:

	-frames DIR
		Directory containing the target-language frame files (Scanner.frame,
		Parser.frame, and an optional copyright.frame).

	-o DIR
		Output directory for generated files and trace.txt. Defaults to the
		current working directory.

	-namespace ID
		Namespace/package name for emitted code.

	-trace DIGITS
		Each digit in DIGITS turns on one debug-trace-table section in
		trace.txt: 0 DFA states, 1 first/follow, 2 graph nodes, 4 ANY/SYNC,
		6 symbol table, 7 XRef, 8 statistics. Digit 3 (FIRST trace) is
		accepted but writes no section.

	-config FILE
		Optional TOML file pre-filling -frames/-o/-namespace defaults.

	-v, --version
		Print the current version and exit.

The process exit code is zero on success and non-zero if any syntax or
semantic error was reported against the grammar.
*/
package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"

	"github.com/finback/coco/internal/coco/analysis"
	"github.com/finback/coco/internal/coco/automaton"
	"github.com/finback/coco/internal/coco/cocoerr"
	"github.com/finback/coco/internal/coco/grammar"
	"github.com/finback/coco/internal/coco/metaparser"
	"github.com/finback/coco/internal/coco/scanner"
	"github.com/finback/coco/internal/coco/srcbuf"
	"github.com/finback/coco/internal/coco/trace"
	"github.com/finback/coco/internal/version"
)

const (
	// ExitSuccess indicates the grammar compiled with no errors.
	ExitSuccess = iota

	// ExitUsageError indicates a missing or unreadable grammar file, or a
	// malformed -config file.
	ExitUsageError

	// ExitGrammarError indicates the grammar contained one or more
	// syntactic or semantic errors.
	ExitGrammarError
)

// fileConfig mirrors the optional -config TOML file's recognized keys.
type fileConfig struct {
	Frames    string `toml:"frames"`
	Out       string `toml:"out"`
	Namespace string `toml:"namespace"`
}

var (
	returnCode int = ExitSuccess

	flagVersion   = pflag.BoolP("version", "v", false, "Print the current version and exit")
	flagFrames    = pflag.String("frames", "", "Directory of target-language frame files")
	flagOut       = pflag.StringP("o", "o", ".", "Output directory for generated files and trace.txt")
	flagNamespace = pflag.String("namespace", "", "Namespace/package name for emitted code")
	flagTrace     = pflag.String("trace", "", "Digits selecting which trace.txt sections to write")
	flagConfig    = pflag.String("config", "", "Optional TOML file pre-filling -frames/-o/-namespace")
)

func main() {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			panic(fmt.Sprintf("unrecoverable panic occurred: %v", panicErr))
		} else {
			os.Exit(returnCode)
		}
	}()

	pflag.Parse()

	if *flagVersion {
		fmt.Printf("%s\n", version.Current)
		return
	}

	if *flagConfig != "" {
		var cfg fileConfig
		if _, err := toml.DecodeFile(*flagConfig, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: reading -config: %v\n", err)
			returnCode = ExitUsageError
			return
		}
		if *flagFrames == "" {
			*flagFrames = cfg.Frames
		}
		if *flagOut == "." && cfg.Out != "" {
			*flagOut = cfg.Out
		}
		if *flagNamespace == "" {
			*flagNamespace = cfg.Namespace
		}
	}

	if pflag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: coco <grammar-file> [flags]")
		returnCode = ExitUsageError
		return
	}
	grammarFile := pflag.Arg(0)

	f, err := os.Open(grammarFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		returnCode = ExitUsageError
		return
	}
	defer f.Close()

	errs := &cocoerr.Counter{}
	g := grammar.NewStore(
		func(line int, msg string) { errs.SemanticErr(line, 0, msg) },
		func(msg string) { errs.Warn(0, 0, msg) },
	)

	buf := srcbuf.NewBuffer(f)
	sc := scanner.New(buf, errs)
	p := metaparser.New(sc, g, errs)
	p.Parse()

	var nfa *automaton.Automaton
	var dfa *automaton.Automaton
	var an *analysis.Analyzer

	if errs.OK() {
		nfa = buildScannerNFA(g)
		dfa, _ = automaton.ToDFA(g, nfa)
		dfa.DeleteRedundantStates()

		an = analysis.New(g, errs)
		an.RunAll()
	}

	if err := writeTrace(*flagOut, grammarFile, g, dfa, errs, *flagTrace); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: writing trace.txt: %v\n", err)
		returnCode = ExitUsageError
		return
	}

	if errs.Count > 0 {
		fmt.Fprintf(os.Stderr, "%d error(s), %d warning(s)\n", errs.Count, errs.Warnings())
		returnCode = ExitGrammarError
		return
	}

	if an == nil || !an.GrammarOK() {
		fmt.Fprintln(os.Stderr, "grammar analysis failed; no output emitted")
		returnCode = ExitGrammarError
		return
	}

	fmt.Printf("%d warning(s)\n", errs.Warnings())

	if *flagFrames == "" {
		// No back-end is wired into the core (spec.md §1): without frame
		// files there is nothing further to do but report success.
		return
	}

	fmt.Fprintf(os.Stderr, "note: frame-driven emission is implemented by an external back-end; "+
		"internal/coco/emit exposes the interfaces, frames=%q out=%q namespace=%q\n",
		*flagFrames, *flagOut, *flagNamespace)
}

// buildScannerNFA walks every terminal symbol's token pattern graph into one
// shared NFA, the step the control-flow description in spec.md §2 assigns
// to the meta-parser "as token declarations are encountered" — done here in
// one pass over the finished symbol table instead, since every TOKENS and
// PRAGMAS declaration necessarily precedes PRODUCTIONS in the grammar this
// parser accepts, so the two orderings build an identical automaton.
func buildScannerNFA(g *grammar.Store) *automaton.Automaton {
	nfa := automaton.New()
	b := automaton.NewBuilder(g, nfa)

	// Every terminal or pragma with a graph — class patterns and literal
	// spellings alike (metaparser.tokenDecl sets sym.Graph for every
	// declaration with an `= TokenExpr` part; one without it has no graph
	// and is skipped below) — is folded into the same NFA. A literal like
	// "if" sharing a prefix with a broader pattern like `ident` naturally
	// melts onto the same DFA states during subset construction, which is
	// the observable effect of §4.4's match_literal fold-in without needing
	// a separate incremental DFA walk during parsing.
	for _, sym := range g.Terminals() {
		if sym.Graph == grammar.NoRef {
			continue
		}
		b.AddToken(0, sym.Graph, sym)
	}
	for _, sym := range g.Pragmas() {
		if sym.Graph == grammar.NoRef {
			continue
		}
		b.AddToken(0, sym.Graph, sym)
	}

	return nfa
}

// writeTrace opens <out>/trace.txt (when any trace digit is set) and writes
// the enabled sections; it is a no-op, not an error, when flagTrace is
// empty.
func writeTrace(out, grammarName string, g *grammar.Store, a *automaton.Automaton, errs *cocoerr.Counter, digits string) error {
	if digits == "" {
		return nil
	}

	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}

	tf, err := os.Create(out + string(os.PathSeparator) + "trace.txt")
	if err != nil {
		return err
	}
	defer tf.Close()

	tw := trace.New(tf, digits)
	tw.WriteAll(grammarName, g, a, errs)
	return nil
}
