package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/smm-acc/internal/acc"
	"github.com/fxnlabs/smm-acc/internal/libsmm"
	"github.com/fxnlabs/smm-acc/kernels"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func infoCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the selected backend and its device",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-banner", Usage: "Skip the ASCII banner"},
		},
		Action: func(c *cli.Context) error {
			manager, err := acc.NewManager(e.cfg.Device, e.log)
			if err != nil {
				return err
			}
			defer manager.Cleanup()

			if !c.Bool("no-banner") {
				fmt.Fprintln(c.App.Writer, figure.NewFigure("smm-acc", "", true).String())
			}
			return printInfo(c.App.Writer, manager, e.log)
		},
	}
}

func printInfo(w io.Writer, manager *acc.Manager, log *zap.Logger) error {
	info := manager.GetDeviceInfo()
	free, total, err := manager.GetBackend().DevMemInfo()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Backend:          %s\n", manager.GetBackendType())
	fmt.Fprintf(w, "Device:           %s\n", info.Name)
	if info.Vendor != "" {
		fmt.Fprintf(w, "Vendor:           %s\n", info.Vendor)
	}
	fmt.Fprintf(w, "Compute units:    %d\n", info.ComputeUnits)
	fmt.Fprintf(w, "Driver:           %s\n", info.DriverVersion)
	if info.RuntimeVersion != "" {
		fmt.Fprintf(w, "Runtime:          %s\n", info.RuntimeVersion)
	}
	fmt.Fprintf(w, "Double precision: %t\n", info.DoublePrecision)
	if len(info.Features) > 0 {
		fmt.Fprintf(w, "CPU features:     %s\n", strings.Join(info.Features, " "))
	}
	fmt.Fprintf(w, "Memory:           %.2f GB free of %.2f GB\n", float64(free)/1e9, float64(total)/1e9)
	least, greatest := manager.GetBackend().StreamPriorityRange()
	fmt.Fprintf(w, "Stream priority:  [%d, %d]\n", least, greatest)
	fmt.Fprintf(w, "Kernels:          %d block sizes\n", len(libsmm.ListBlocksizes()))

	if !info.DoublePrecision {
		log.Warn("device lacks double precision; kernels will fail to build")
	}
	return nil
}

func blocksizesCommand() *cli.Command {
	return &cli.Command{
		Name:  "blocksizes",
		Usage: "List block sizes with a generated kernel",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "source", Usage: "Print the kernel source with its build options"},
		},
		Action: func(c *cli.Context) error {
			w := c.App.Writer
			for _, bs := range libsmm.ListBlocksizes() {
				kernel, _ := libsmm.LookupMultiply(bs[0], bs[1], bs[2])
				fmt.Fprintf(w, "%3d x %3d x %3d  %s\n", bs[0], bs[1], bs[2], kernel.Name())
				if c.Bool("source") {
					fmt.Fprintf(w, "    %s\n", kernels.BuildOptions(
						kernels.Define{Name: "SMM_M", Value: kernel.M},
						kernels.Define{Name: "SMM_N", Value: kernel.N},
						kernels.Define{Name: "SMM_K", Value: kernel.K},
						kernels.Define{Name: "SMM_GROUPING", Value: kernel.Grouping},
					))
				}
			}
			return nil
		},
	}
}
