package internal

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	LINUX_USER        = "ptz-stabilizer"
	LINUX_SERVICE     = "ptz-stabilizer"
	LINUX_BIN         = "/usr/local/bin/ptz-stabilizer"
	LINUX_CONFIG_DIR  = "/etc/ptz-stabilizer"
	LINUX_CONFIG_FILE = "/etc/ptz-stabilizer/options.json"
	LINUX_LOG_DIR     = "/var/log/ptz-stabilizer"
)

// execCommand runs an external command to completion.
var execCommand = func(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

type setupStep struct {
	title    string
	name     string
	args     []string
	optional bool
}

func runSteps(steps []setupStep) error {
	for i, step := range steps {
		fmt.Printf("%d. %s\n", i+1, step.title)
		if err := execCommand(step.name, step.args...); err != nil {
			if step.optional {
				fmt.Printf("%d. skipped : %s\n", i+1, err.Error())
				continue
			}
			return errors.Wrapf(err, "step %d (%s) failed", i+1, step.title)
		}
	}
	return nil
}

// PrepareLinuxServiceEnv creates the service user, installs the running binary to /usr/local/bin,
// copies the options file (if it exists) to /etc/ptz-stabilizer and creates the log directory.
func PrepareLinuxServiceEnv(configPath string) error {
	binary, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "can't locate running binary")
	}
	steps := []setupStep{
		{title: "creating " + LINUX_USER + " user and group", name: "useradd", args: []string{"-r", "-s", "/bin/false", LINUX_USER}, optional: true},
		{title: "copying " + binary + " to " + LINUX_BIN, name: "cp", args: []string{"-f", binary, LINUX_BIN}},
		{title: "creating config folder " + LINUX_CONFIG_DIR, name: "mkdir", args: []string{"-p", LINUX_CONFIG_DIR}},
	}
	if configPath != "" && filepath.Clean(configPath) != LINUX_CONFIG_FILE {
		if _, err := os.Stat(configPath); err == nil {
			steps = append(steps, setupStep{title: "copying " + configPath + " to " + LINUX_CONFIG_FILE, name: "cp", args: []string{configPath, LINUX_CONFIG_FILE}})
		} else {
			fmt.Printf("config file %s not found, cameras must be configured in %s\n", configPath, LINUX_CONFIG_FILE)
		}
	}
	steps = append(steps,
		setupStep{title: "creating log directory " + LINUX_LOG_DIR, name: "mkdir", args: []string{"-p", LINUX_LOG_DIR}},
		setupStep{title: "changing owner of log directory", name: "chown", args: []string{"-R", LINUX_USER + ":" + LINUX_USER, LINUX_LOG_DIR}},
	)
	return runSteps(steps)
}

// RemoveLinuxServiceEnv undoes PrepareLinuxServiceEnv. Every step is best effort.
func RemoveLinuxServiceEnv() error {
	return runSteps([]setupStep{
		{title: "removing " + LINUX_USER + " user and group", name: "userdel", args: []string{"-r", LINUX_USER}, optional: true},
		{title: "removing binary " + LINUX_BIN, name: "rm", args: []string{"-f", LINUX_BIN}, optional: true},
		{title: "removing config file " + LINUX_CONFIG_FILE, name: "rm", args: []string{"-f", LINUX_CONFIG_FILE}, optional: true},
		{title: "removing log directory " + LINUX_LOG_DIR, name: "rm", args: []string{"-rf", LINUX_LOG_DIR}, optional: true},
	})
}

// UpdateLinuxServiceBinary replaces the installed binary with the running one and restarts the service.
func UpdateLinuxServiceBinary() error {
	fmt.Println("WARNING: This operation will update the ptz-stabilizer binary. It might require root privileges.")
	binary, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "can't locate running binary")
	}
	return runSteps([]setupStep{
		{title: "stopping " + LINUX_SERVICE + " service", name: "systemctl", args: []string{"stop", LINUX_SERVICE}, optional: true},
		{title: "copying " + binary + " to " + LINUX_BIN, name: "cp", args: []string{"-f", binary, LINUX_BIN}},
		{title: "starting " + LINUX_SERVICE + " service", name: "systemctl", args: []string{"start", LINUX_SERVICE}, optional: true},
	})
}
