// Wax CLI - compiles a JSON-exported block program and runs it stepwise.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/patreeceeo/wax-editor-sub000/compiler"
	"github.com/patreeceeo/wax-editor-sub000/manifest"
	"github.com/patreeceeo/wax-editor-sub000/vm"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	trace := flag.Bool("trace", false, "Log every executed instruction")
	replay := flag.Bool("replay", false, "Step back to the start and verify snapshot equality")
	disassemble := flag.Bool("dis", false, "Print the disassembled main procedure before running")
	steps := flag.Int("steps", 0, "Step limit (overrides the manifest)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wax [options] [program.json]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles a JSON block program, runs it one instruction per snapshot,\n")
		fmt.Fprintf(os.Stderr, "and prints the final machine state as JSON.\n\n")
		fmt.Fprintf(os.Stderr, "The program path defaults to the entry named by ./wax.toml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	m := manifest.Default()
	if manifest.Exists(".") {
		loaded, err := manifest.Load(".")
		if err != nil {
			fail("loading manifest: %v", err)
		}
		m = loaded
	}

	programPath := m.EntryPath()
	if flag.NArg() > 0 {
		programPath = flag.Arg(0)
	}
	if programPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	verbosity := 0
	if *trace || m.Run.Trace {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	data, err := os.ReadFile(programPath)
	if err != nil {
		fail("reading %s: %v", programPath, err)
	}
	program, err := compiler.DecodeProgram(bytes.NewReader(data))
	if err != nil {
		fail("decoding %s: %v", filepath.Base(programPath), err)
	}

	machine := vm.NewMachine(vm.NewCoreRegistry())
	if err := compiler.NewCompiler(machine).Compile(program); err != nil {
		fail("compiling: %v", err)
	}

	if *disassemble {
		entry, err := machine.Memory().Get(vm.MainProcedureKey)
		if err != nil {
			fail("%v", err)
		}
		fmt.Fprint(os.Stderr, entry.Disassemble())
	}

	if err := machine.Start(); err != nil {
		fail("starting: %v", err)
	}

	history := vm.NewHistory(machine)
	if *steps > 0 {
		history.SetStepLimit(*steps)
	} else {
		history.SetStepLimit(m.Run.StepLimit)
	}

	taken, err := history.RunToEnd()
	if err != nil {
		fail("after %d steps: %v", taken, err)
	}

	final := history.Current()
	if *replay {
		if err := verifyReplay(history); err != nil {
			fail("replay: %v", err)
		}
		fmt.Fprintf(os.Stderr, "replayed %d steps: history is consistent\n", taken)
	}

	out, err := vm.MarshalMachineJSON(final)
	if err != nil {
		fail("encoding final state: %v", err)
	}
	fmt.Println(string(out))
}

// verifyReplay steps the cursor back to the initial snapshot and checks that
// every stored snapshot still encodes to the same canonical bytes, i.e. that
// stepping forward never mutated history.
func verifyReplay(history *vm.History) error {
	encoded := make([][]byte, history.Len())
	for i := 0; i < history.Len(); i++ {
		data, err := vm.MarshalMachine(history.Snapshot(i))
		if err != nil {
			return err
		}
		encoded[i] = data
	}
	for history.StepBack() {
	}
	for i := 0; i < history.Len(); i++ {
		data, err := vm.MarshalMachine(history.Snapshot(i))
		if err != nil {
			return err
		}
		if !bytes.Equal(data, encoded[i]) {
			return fmt.Errorf("snapshot %d changed after stepping back", i)
		}
	}
	return nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
