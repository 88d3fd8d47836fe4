// iopdump prints the contents of a program package (.iop) file: its
// programs, their entry points and the tensor layouts each entry point
// expects.
//
// Usage:
//
//	iopdump <path/to/package.iop>
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"k8s.io/klog/v2"

	"github.com/gomlx/gotsp/iop"
)

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s <path/to/package.iop>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	path := flag.Arg(0)
	pkg, err := iop.Load(path)
	if err != nil {
		klog.Exitf("Failed to load program package from %q: %+v", path, err)
	}

	fmt.Printf("%s: %d program(s)\n", path, pkg.NumPrograms())
	for i, program := range pkg.Programs() {
		fmt.Printf("\nProgram #%d %q -- input region %s, output region %s, %s of instructions\n",
			i, program.Name(),
			humanize.Bytes(uint64(program.InputSize())),
			humanize.Bytes(uint64(program.OutputSize())),
			humanize.Bytes(uint64(len(program.Instructions()))))
		for j, ep := range program.EntryPoints() {
			fmt.Printf("  Entry point #%d %q:\n", j, ep.Name())
			printDescriptor("input", ep.Input())
			printDescriptor("output", ep.Output())
		}
	}
}

func printDescriptor(side string, iod *iop.IODescriptor) {
	fmt.Printf("    %s (%s):\n", side, humanize.Bytes(uint64(iod.Size())))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"SLOT", "TENSOR", "DTYPE", "SHAPE", "FORMAT", "HOST SIZE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	for slot, layout := range iod.TensorLayouts() {
		table.Append([]string{
			fmt.Sprintf("%d", slot),
			layout.Name(),
			layout.DType().String(),
			shapeString(layout.Dimensions()),
			layout.Format().String(),
			humanize.Bytes(uint64(layout.HostSize())),
		})
	}
	table.Render()
}

func shapeString(dimensions []int) string {
	if len(dimensions) == 0 {
		return "scalar"
	}
	parts := make([]string, len(dimensions))
	for d, dim := range dimensions {
		parts[d] = fmt.Sprintf("%d", dim)
	}
	return strings.Join(parts, "x")
}
