package main

import (
	"fmt"
	"os"
	"sync"

	"ollie/src/backend"
	"ollie/src/frontend"
	"ollie/src/ir/cfg"
	"ollie/src/ir/optimizer"
	"ollie/src/ir/optimizer/llvmopt"
	"ollie/src/ir/scheduler"
	"ollie/src/util"
)

// FrontEnd produces the AST roots and symbol/type tables the back end lowers, out of core scope per the
// design: lexing, parsing and type checking are named interfaces here, not algorithms this repo owns.
// A real front end registers itself by assigning Parse before main runs; the olliec binary built from
// this module alone has none wired in and reports that as the run error.
var Parse func(src string) (roots []*frontend.Node, symtab frontend.SymbolTable, types frontend.TypeTable, err error)

// run drives one compilation: parse, lower to CFG, optimise, schedule, allocate/postprocess/emit.
func run(opt util.Options) error {
	src, err := util.ReadSource(opt)
	if err != nil {
		return fmt.Errorf("could not read source: %s", err)
	}

	if Parse == nil {
		return fmt.Errorf("no front end wired into this build: lexing/parsing/type-checking live outside the back-end core")
	}
	roots, symtab, types, err := Parse(src)
	if err != nil {
		return fmt.Errorf("parse error: %s", err)
	}

	c := cfg.NewCFG(symtab, types)
	b := cfg.NewBuilder(c)
	for _, root := range roots {
		b.BuildFunction(root)
	}

	var opt1 optimizer.Optimizer = optimizer.None{}
	if opt.LLVM {
		opt1 = llvmopt.Fold{}
	}
	if err := optimizer.Run(c, opt1, opt.Threads); err != nil {
		return fmt.Errorf("optimizer error: %s", err)
	}

	if opt.PrintIRs {
		for _, fn := range c.Functions {
			fmt.Println(fn.Print(cfg.ModeVariable))
		}
	}

	w := util.NewWriter()
	defer w.Close()
	if err := backend.Run(c, &w, scheduler.Identity{}, opt.Src); err != nil {
		return fmt.Errorf("code generation error: %s", err)
	}

	if opt.PrintIRs {
		for _, fn := range c.Functions {
			fmt.Println(fn.Print(cfg.ModeRegister))
		}
	}
	return nil
}

func main() {
	opt, err := util.ParseArgs()
	if err != nil {
		fmt.Printf("command line argument error: %s\n", err)
		os.Exit(1)
	}

	wg := sync.WaitGroup{}
	var f *os.File
	if len(opt.Out) > 0 {
		var ferr error
		f, ferr = os.OpenFile(opt.Out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
		if ferr != nil {
			fmt.Println(ferr)
			os.Exit(1)
		}
		util.ListenWrite(opt, f, &wg)
	} else {
		util.ListenWrite(opt, nil, &wg)
	}

	runErr := run(opt)

	util.Close()
	wg.Wait()
	if f != nil {
		f.Close()
	}

	if runErr != nil {
		fmt.Printf("error: %s\n", runErr)
		os.Exit(1)
	}
}
