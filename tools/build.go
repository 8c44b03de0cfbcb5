///usr/bin/true; exec /usr/bin/env go run "$0" "$@"

package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const MODULE = "github.com/newtonium/newtonium"

var (
	buildOs         = flag.String("os", runtime.GOOS, "Specify the operating system to build for.")
	buildArch       = flag.String("arch", runtime.GOARCH, "Specify the architecture to build for.")
	buildDir        = flag.String("buildDir", "build/", "Specify the build dir to write build outputs to.")
	app             = flag.String("app", "", "Application directory to package. Without it only the runner is built.")
	entrypoint      = flag.String("entrypoint", "", "Script passed to the runtime, relative to -app.")
	runtimeBinary   = flag.String("runtime", "", "Runtime binary to bundle.")
	installerBinary = flag.String("installer-binary", "", "Installer binary to bundle.")
	installer       = flag.Bool("installer", false, "Build an installer bundle.")
	capture         = flag.Bool("capture", false, "Build the runner variant that captures runtime output.")
	output          = flag.String("output", "app", "Name of the launcher executable.")
	debug           = flag.Bool("debug", false, "Print executed commands.")
	run             = flag.Bool("run", false, "Run the launcher after building it.")
)

func getTarget(buildDir string, buildOs string, name string) string {
	targetFilename := filepath.Join(buildDir, name)
	if buildOs == "windows" {
		targetFilename += ".exe"
	}
	return targetFilename
}

func getTargetDir(buildDir string, targetOs string, targetArch string) (string, error) {
	if targetOs == runtime.GOOS && targetArch == runtime.GOARCH {
		return buildDir, nil
	}

	newDir := filepath.Join(buildDir, fmt.Sprintf("cross-%s-%s", targetOs, targetArch))

	err := os.MkdirAll(newDir, os.ModePerm)
	if err != nil {
		return "", fmt.Errorf("failed to create directory: %v", err)
	}

	return newDir, nil
}

func platformFor(goos string) string {
	if goos == "windows" {
		return "windows"
	}
	return "linux"
}

func execute(cmd *exec.Cmd) error {
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if *debug {
		log.Printf("executing %v", cmd.Args)
	}

	return cmd.Run()
}

func generateRev() string {
	out := exec.Command("git", "describe", "--tags", "--dirty")

	buf := new(bytes.Buffer)

	out.Stdout = buf
	out.Stderr = os.Stderr

	if *debug {
		log.Printf("executing %v", out.Args)
	}

	if err := out.Run(); err != nil {
		log.Printf("git describe --tags failed. Using fallback version")
		return "nongit"
	}

	return strings.Trim(buf.String(), "\n\r")
}

func goBuild(outputFilename string, pkg string, ldflags []string) error {
	args := []string{
		"build",
		"-o", outputFilename,
		"-ldflags", strings.Join(ldflags, " "),
		MODULE + "/" + pkg,
	}

	cmd := exec.Command("go", args...)

	cmd.Env = cmd.Environ()

	cmd.Env = append(cmd.Env, "CGO_ENABLED=0")
	cmd.Env = append(cmd.Env, "GOOS="+*buildOs)
	cmd.Env = append(cmd.Env, "GOARCH="+*buildArch)

	log.Printf("Build %s for target: %s/%s", pkg, *buildOs, *buildArch)

	return execute(cmd)
}

func buildRunner(target string, version string) (string, error) {
	outputFilename := getTarget(target, *buildOs, "runner")

	ldflags := []string{"-X " + MODULE + "/pkg/buildinfo.VERSION=" + version}
	if *capture {
		ldflags = append(ldflags, "-X main.streamMode=capture")
	}
	if *buildOs == "windows" {
		ldflags = append(ldflags, "-H=windowsgui")
	}

	if err := goBuild(outputFilename, "cmd/runner", ldflags); err != nil {
		return "", err
	}

	return outputFilename, nil
}

// pack runs on the host so it is invoked with go run instead of the cross build.
func pack(runner string) error {
	args := []string{
		"run", MODULE + "/cmd/newtonium",
		"pack", *app,
		"--entrypoint", *entrypoint,
		"--platform", platformFor(*buildOs),
		"--runtime", *runtimeBinary,
		"--runner", runner,
		"-o", filepath.Join("cmd", "launcher"),
	}

	if *installer {
		args = append(args, "--installer", "--installer-binary", *installerBinary)
	}

	log.Printf("Packing %s", *app)

	return execute(exec.Command("go", args...))
}

func buildLauncher(target string, version string) (string, error) {
	outputFilename := getTarget(target, *buildOs, *output)

	ldflags := []string{"-X " + MODULE + "/pkg/buildinfo.VERSION=" + version}
	if *buildOs == "windows" {
		ldflags = append(ldflags, "-H=windowsgui")
	}

	if err := goBuild(outputFilename, "cmd/launcher", ldflags); err != nil {
		return "", err
	}

	return outputFilename, nil
}

func main() {
	flag.Parse()

	version := generateRev()

	target, err := getTargetDir(*buildDir, *buildOs, *buildArch)
	if err != nil {
		log.Fatal(err)
	}

	runner, err := buildRunner(target, version)
	if err != nil {
		log.Fatal(err)
	}

	if *app == "" {
		return
	}

	if err := pack(runner); err != nil {
		log.Fatal(err)
	}

	filename, err := buildLauncher(target, version)
	if err != nil {
		log.Fatal(err)
	}

	if *run {
		cmd := exec.Command(filename, flag.Args()...)

		if err := execute(cmd); err != nil {
			log.Fatal(err)
		}
	}
}
