// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/wrappe

// Command wrappe packs a directory tree behind a platform runner into a
// self-extracting single-file executable.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/woozymasta/wrappe"
	"github.com/woozymasta/wrappe/pe"
)

// version is stamped by the build.
var version = "dev"

// packFlags collects all CLI flag values.
type packFlags struct {
	runner          string
	compression     int
	unpackTarget    string
	unpackDirectory string
	versioning      string
	verification    string
	versionString   string
	showInformation string
	console         string
	currentDir      string
	once            bool
	cleanup         bool
	buildDictionary bool
	listRunners     bool
	includes        []string
	excludes        []string
}

var (
	styleTitle = color.New(color.Bold, color.FgHiWhite)
	styleStep  = color.New(color.Bold, color.Faint)
	styleNote  = color.New(color.FgYellow)
	styleError = color.New(color.FgRed)
	styleOk    = color.New(color.FgGreen)
	styleDim   = color.New(color.Faint)
	styleValue = color.New(color.FgMagenta)
)

func main() {
	flags := &packFlags{}

	cmd := &cobra.Command{
		Use:           "wrappe [flags] <input> <command> [output] [-- arguments...]",
		Short:         "create self-extracting single-file executables",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if flags.listRunners {
				return nil
			}

			positional := args
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				positional = args[:dash]
			}
			if len(positional) < 2 || len(positional) > 3 {
				return fmt.Errorf("expected <input> <command> [output], got %d arguments", len(positional))
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			styleTitle.Printf("wrappe %s\n", version)

			if flags.listRunners {
				return listRunners()
			}

			positional := args
			baked := []string{}
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				positional = args[:dash]
				baked = args[dash:]
			}

			return runPack(flags, positional, baked)
		},
	}

	cmd.Flags().StringVarP(&flags.runner, "runner", "r", "native", "platform to pack for (see --list-runners)")
	cmd.Flags().IntVarP(&flags.compression, "compression", "c", wrappe.DefaultCompressionLevel, "zstd compression level (0-22)")
	cmd.Flags().StringVarP(&flags.unpackTarget, "unpack-target", "t", "temp", "unpack directory target (temp, local, cwd)")
	cmd.Flags().StringVarP(&flags.unpackDirectory, "unpack-directory", "d", "", "unpack directory name (default: inferred from input)")
	cmd.Flags().StringVarP(&flags.versioning, "versioning", "v", "sidebyside", "versioning strategy (sidebyside, replace, none)")
	cmd.Flags().StringVarP(&flags.verification, "verification", "e", "existence", "verification of existing unpacked data (none, existence, checksum)")
	cmd.Flags().StringVarP(&flags.versionString, "version-string", "s", "", "version string override (default: randomly generated)")
	cmd.Flags().StringVarP(&flags.showInformation, "show-information", "i", "title", "information output details (none, title, verbose)")
	cmd.Flags().StringVarP(&flags.console, "console", "n", "auto", "show or attach to a console window (auto, always, never, attach)")
	cmd.Flags().StringVarP(&flags.currentDir, "current-dir", "w", "inherit", "working directory of the command (inherit, unpack, runner, command)")
	cmd.Flags().BoolVarP(&flags.once, "once", "o", false, "only allow one instance of the application to run")
	cmd.Flags().BoolVarP(&flags.cleanup, "cleanup", "u", false, "cleanup the unpack directory after exit")
	cmd.Flags().BoolVarP(&flags.buildDictionary, "build-dictionary", "z", false, "build compression dictionary")
	cmd.Flags().BoolVarP(&flags.listRunners, "list-runners", "l", false, "print available runners")
	cmd.Flags().StringArrayVar(&flags.includes, "include", nil, "only pack entries matching a pattern (repeatable)")
	cmd.Flags().StringArrayVar(&flags.excludes, "exclude", nil, "skip entries matching a pattern (repeatable)")

	if err := cmd.Execute(); err != nil {
		styleError.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// listRunners prints the embedded runner table keys.
func listRunners() error {
	table, err := loadRunnerTable()
	if err != nil {
		return err
	}

	fmt.Println("available runners:")
	for i, key := range table.Keys() {
		if i == 0 {
			fmt.Printf("  %s %s\n", key, styleDim.Sprint("(default)"))
			continue
		}

		fmt.Printf("  %s\n", key)
	}

	return nil
}

// runPack drives one package build end to end.
func runPack(flags *packFlags, positional, baked []string) error {
	table, err := loadRunnerTable()
	if err != nil {
		return err
	}

	runnerName, err := table.Resolve(flags.runner)
	if err != nil {
		return err
	}

	unpackTarget, err := parseUnpackTarget(flags.unpackTarget)
	if err != nil {
		return err
	}
	versioning, err := parseVersioning(flags.versioning)
	if err != nil {
		return err
	}
	verification, err := parseVerification(flags.verification)
	if err != nil {
		return err
	}
	showInformation, err := parseShowInformation(flags.showInformation)
	if err != nil {
		return err
	}
	showConsole, err := parseShowConsole(flags.console, runnerName)
	if err != nil {
		return err
	}
	currentDir, err := parseCurrentDir(flags.currentDir)
	if err != nil {
		return err
	}
	if flags.compression < 0 || flags.compression > wrappe.MaxCompressionLevel {
		return fmt.Errorf("compression level %d is out of range [0, %d]",
			flags.compression, wrappe.MaxCompressionLevel)
	}

	uid, err := resolveUID(flags.versionString)
	if err != nil {
		return err
	}

	source, err := resolveSource(positional[0])
	if err != nil {
		return err
	}
	commandRel, err := resolveCommand(positional[1], source)
	if err != nil {
		return err
	}

	output := ""
	if len(positional) == 3 {
		output = positional[2]
	}
	output, err = resolveOutput(output, commandRel)
	if err != nil {
		return err
	}
	if output == source {
		return fmt.Errorf("output file can't be the input file: %s", output)
	}

	unpackDirectory, err := resolveUnpackDirectory(flags.unpackDirectory, source)
	if err != nil {
		return err
	}

	printBuildNotes(flags, runnerName, versioning, verification)

	count := countEntries(source)
	styleStep.Print("[1/4] ")
	fmt.Printf("counting contents of %s: %s entries\n",
		styleValue.Sprint(source), styleValue.Sprint(count))

	styleStep.Print("[2/4] ")
	fmt.Printf("writing runner %s for target %s\n",
		styleValue.Sprint(output), styleValue.Sprint(runnerName))

	image, err := table.Runner(runnerName)
	if err != nil {
		return err
	}

	if strings.Contains(runnerName, "windows") {
		image, showConsole = spliceWindowsRunner(image, source, commandRel, flags.console, showConsole)
	}

	styleStep.Print("[3/4] ")
	fmt.Printf("compressing %s files and directories\n", styleValue.Sprint(count))

	info, err := wrappe.NewStarterInfo(uid, unpackDirectory, commandRel, baked)
	if err != nil {
		return err
	}
	info.ShowConsole = showConsole
	info.CurrentDir = currentDir
	info.Verification = verification
	info.ShowInformation = showInformation
	info.UnpackTarget = unpackTarget
	info.Versioning = versioning
	if flags.once {
		info.Once = 1
	}
	if !flags.cleanup {
		info.NoCleanup = 1
	}

	callbacks, flush := newPackProgress(count)
	started := time.Now()
	result, err := wrappe.BuildPackage(wrappe.BuildConfig{
		Pack: wrappe.PackOptions{
			Callbacks:       callbacks,
			Rules:           buildRules(flags.includes, flags.excludes),
			Level:           flags.compression,
			BuildDictionary: flags.buildDictionary,
		},
		Source:      source,
		Output:      output,
		RunnerImage: image,
		Info:        info,
	})
	flush()
	if err != nil {
		return err
	}

	ratio := 0.0
	if result.Read > 0 {
		ratio = float64(result.Written) / float64(result.Read) * 100
	}
	styleDim.Printf("      %.2fMB read, %.2fMB written, %.2f%% of original size\n",
		float64(result.Read)/1024/1024, float64(result.Written)/1024/1024, ratio)
	styleDim.Printf("      took %.2fs\n", time.Since(started).Seconds())
	styleOk.Print("      successfully compressed ")
	fmt.Printf("%s records\n", styleValue.Sprint(result.Records))

	styleStep.Print("[4/4] ")
	fmt.Println("writing startup configuration")
	styleOk.Println("      done!")

	return nil
}

// printBuildNotes surfaces option combinations that behave surprisingly
// at runtime.
func printBuildNotes(flags *packFlags, runnerName string, versioning, verification uint8) {
	if (versioning == wrappe.VersioningReplace || versioning == wrappe.VersioningNone) && !flags.once {
		styleNote.Println("note: chosen versioning without option once can cause unpacking to fail while the application is already running")
	}
	if versioning == wrappe.VersioningNone && verification != wrappe.VerifyNone {
		styleNote.Println("note: verification will be ignored with none versioning")
	}
	if flags.once && !strings.Contains(runnerName, "windows") && !strings.Contains(runnerName, "linux") {
		styleNote.Printf("note: option once is only supported for Windows and Linux runners (target: %s)\n", runnerName)
	}
	if flags.console != "auto" && !strings.Contains(runnerName, "windows") {
		styleNote.Println("note: setting console mode is only supported for Windows runners")
	}
}

// spliceWindowsRunner applies the console policy to a Windows runner
// image and copies the entry command's resources (icons, version info)
// into it. Failures fall back to the unmodified image with a note, the
// build never aborts here.
func spliceWindowsRunner(image []byte, source, commandRel, consoleFlag string, showConsole uint8) ([]byte, uint8) {
	subsystem := pe.SubsystemGUI
	if showConsole == wrappe.ConsoleShow {
		subsystem = pe.SubsystemConsole
	}
	if err := pe.SetSubsystem(image, subsystem); err != nil {
		styleNote.Printf("      failed to set subsystem for runner: %v\n", err)
	}

	commandPath := source
	if fi, err := os.Stat(source); err == nil && fi.IsDir() {
		commandPath = filepath.Join(source, filepath.FromSlash(commandRel))
	}
	commandData, err := os.ReadFile(commandPath)
	if err != nil {
		styleNote.Printf("      failed to read command for resources: %v\n", err)
		return image, showConsole
	}

	if consoleFlag == "auto" {
		if commandSubsystem, err := pe.Subsystem(commandData); err == nil {
			if commandSubsystem == pe.SubsystemConsole {
				showConsole = wrappe.ConsoleShow
			} else {
				showConsole = wrappe.ConsoleHide
			}
			if err := pe.SetSubsystem(image, commandSubsystem); err != nil {
				styleNote.Printf("      failed to set subsystem for runner: %v\n", err)
			}
		}
	}

	spliced, err := pe.CopyResources(image, commandData)
	if err != nil {
		styleNote.Printf("      failed to copy resources to runner: %v\n", err)
		return image, showConsole
	}

	return spliced, showConsole
}

// countEntries walks the source once to size the progress bar. Hidden
// entries count; the root itself does not.
func countEntries(source string) int64 {
	if fi, err := os.Stat(source); err == nil && !fi.IsDir() {
		return 1
	}

	var count int64
	_ = filepath.WalkDir(source, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != source {
			count++
		}
		return nil
	})

	return count
}

// newPackProgress builds the progress bar and the engine callbacks
// feeding it. Skipped-entry errors and notes are buffered and flushed
// after the bar finishes so they don't tear the render.
func newPackProgress(count int64) (wrappe.Callbacks, func()) {
	progress := mpb.New(mpb.WithWidth(64))

	var status atomic.Value
	status.Store("")

	bar := progress.New(count,
		mpb.BarStyle(),
		mpb.PrependDecorators(
			decor.Elapsed(decor.ET_STYLE_MMSS),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("%d / %d"),
			decor.Any(func(decor.Statistics) string {
				message, _ := status.Load().(string)
				if len(message) > 48 {
					message = "…" + message[len(message)-47:]
				}
				if message == "" {
					return ""
				}
				return " " + message
			}),
		),
		mpb.BarRemoveOnComplete(),
	)

	var mu sync.Mutex
	var buffered []string

	callbacks := wrappe.Callbacks{
		Tick: bar.Increment,
		Error: func(message string) {
			mu.Lock()
			buffered = append(buffered, styleError.Sprint("      "+message))
			mu.Unlock()
		},
		Status: func(message string) {
			status.Store(message)
		},
		Info: func(message string) {
			mu.Lock()
			buffered = append(buffered, styleDim.Sprint("      "+message))
			mu.Unlock()
		},
	}

	flush := func() {
		bar.Abort(true)
		progress.Wait()
		mu.Lock()
		defer mu.Unlock()
		for _, line := range buffered {
			fmt.Println(line)
		}
	}

	return callbacks, flush
}
