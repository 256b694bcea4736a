package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/printpoint/kiosk/internal/config"
)

const (
	ColorModeBW    = "bw"
	ColorModeColor = "color"
)

// Printer sends a print-ready artifact to the physical device. The scheduler
// treats it as an opaque operation: success or an error, nothing in between.
type Printer interface {
	Print(ctx context.Context, path string, copies int, colorMode string) error
}

// NewPrinter builds the printer selected by config.
func NewPrinter(cfg *config.PrinterConfig) Printer {
	switch cfg.Driver {
	case "lp":
		return &LPPrinter{Name: cfg.Name, LPPath: cfg.LPPath}
	default:
		return &SimulatedPrinter{Delay: cfg.SimulatedDelay, Fail: cfg.SimulatedFail}
	}
}

// LPPrinter submits jobs through the CUPS lp command.
type LPPrinter struct {
	Name   string
	LPPath string
}

func (p *LPPrinter) Print(ctx context.Context, path string, copies int, colorMode string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("print artifact missing: %w", err)
	}

	args := []string{"-n", strconv.Itoa(copies)}
	if p.Name != "" {
		args = append(args, "-d", p.Name)
	}
	if colorMode == ColorModeColor {
		args = append(args, "-o", "print-color-mode=color")
	} else {
		args = append(args, "-o", "print-color-mode=monochrome")
	}
	args = append(args, path)

	lp := p.LPPath
	if lp == "" {
		lp = "lp"
	}

	cmd := exec.CommandContext(ctx, lp, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("lp failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	log.Printf("[printer] submitted %s: %s", path, strings.TrimSpace(string(output)))
	return nil
}

// SimulatedPrinter stands in for real hardware in development and tests.
type SimulatedPrinter struct {
	Delay time.Duration
	Fail  bool
}

func (p *SimulatedPrinter) Print(ctx context.Context, path string, copies int, colorMode string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("print artifact missing: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.Delay):
	}

	if p.Fail {
		return fmt.Errorf("%w: simulated printer error", ErrPrinterFailed)
	}

	log.Printf("[printer] simulated print of %s (%d copies, %s)", path, copies, colorMode)
	return nil
}
