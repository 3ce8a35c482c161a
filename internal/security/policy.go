// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// policy.go defines the immutable security policy consumed by Context.
package security

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	// DefaultMaxOutputSize is the captured-output cap in characters.
	DefaultMaxOutputSize = 1_000_000

	// DefaultCommandTimeout applies when the caller passes no timeout.
	DefaultCommandTimeout = 30 * time.Second

	// DefaultMaxCommandTimeout is the upper bound caller timeouts are clamped to.
	DefaultMaxCommandTimeout = 10 * time.Minute

	// DefaultMaxCommandLength bounds the total size of a command's arguments.
	DefaultMaxCommandLength = 10000
)

// DefaultProtectedEnvPatterns are case-insensitive substrings; any environment
// variable whose name contains one is withheld from child processes.
var DefaultProtectedEnvPatterns = []string{
	"SECRET",
	"KEY",
	"TOKEN",
	"PASSWORD",
	"CREDENTIAL",
}

// DefaultDisallowedPathPatterns are matched against workspace-relative paths
// (slash separated) both before and after symlink resolution.
var DefaultDisallowedPathPatterns = []string{
	// Credential and key stores
	`(^|/)\.(ssh|gnupg|aws|azure|kube|docker)(/|$)`,
	`(^|/)\.(netrc|git-credentials|npmrc|pypirc|pgpass)$`,

	// Shell startup files (persistence)
	`(^|/)\.(bashrc|bash_profile|bash_login|bash_logout|zshrc|zprofile|zlogin|zlogout|profile|login|cshrc|tcshrc|kshrc|fishrc)$`,
	`(^|/)\.config/fish/config\.fish$`,

	// Git hooks run arbitrary code on the next git invocation
	`(^|/)\.git/hooks(/|$)`,
}

// DefaultDisallowedCommands are program names (basename, glob syntax) that are
// never executed.
var DefaultDisallowedCommands = []string{
	// Privilege changes
	"sudo", "su", "doas", "pkexec", "runuser", "chroot", "setpriv", "capsh",

	// Disks, partitions and filesystems
	"mkfs", "mkfs.*", "mke2fs", "mkswap", "fdisk", "gdisk", "sfdisk", "cfdisk",
	"parted", "wipefs", "shred", "badblocks", "mount", "umount", "swapon", "swapoff",

	// System control and kernel
	"shutdown", "reboot", "halt", "poweroff", "init", "telinit", "kexec",
	"insmod", "rmmod", "modprobe", "sysctl",

	// Accounts and scheduling
	"passwd", "chpasswd", "visudo", "useradd", "userdel", "usermod", "groupadd",
	"crontab", "at",

	// Network listeners and raw devices
	"mkfifo", "mknod",

	// Leaving the process group or session
	"setsid", "daemonize", "start-stop-daemon", "systemd-run", "disown",
}

// DefaultDisallowedCommandPatterns are regular expressions matched against a
// normalized, lower-cased stage (program basename and arguments joined by
// single spaces).
var DefaultDisallowedCommandPatterns = []string{
	// Recursive delete
	`^rm\s(.*\s)?(-[a-z]*r[a-z]*|--recursive)(\s|$)`,
	`^rm\s(.*\s)?--no-preserve-root(\s|$)`,
	`^find\s.*\s-(delete|exec|execdir|ok|okdir)(\s|$)`,

	// Raw device writes
	`^dd\s.*\bof=/dev/`,

	// Permission and ownership changes on the whole tree
	`^chmod\s(.*\s)?(0?777|000)\s+/`,
	`^chown\s(.*\s)?(-[a-z]*r[a-z]*|--recursive)\s`,

	// Firewall and system services
	`^(iptables|ip6tables|nft)\s(.*\s)?(-f|--flush|flush)(\s|$)`,
	`^systemctl\s(.*\s)?(poweroff|reboot|halt|kexec|isolate)(\s|$)`,

	// Reverse shells and sockets
	`^(nc|ncat|netcat)\s(.*\s)?-[a-z]*[ec](\s|$)`,
	`/dev/(tcp|udp)/`,

	// Code execution hidden in otherwise harmless tools
	`\bsystem\s*\(`,
	`^git\s.*\bcore\.(sshcommand|hookspath|fsmonitor|pager|editor)=`,
	`^git\s(.*\s)?--(upload-pack|receive-pack|exec)(=|\s|$)`,
	`^flock\s(.*\s)?(-c|--command)(\s|$)`,
}

// =============================================================================
// POLICY
// =============================================================================

// ResourceLimits are per-process limits applied to spawned commands.
// Zero means "inherit".
type ResourceLimits struct {
	MaxOpenFiles     uint64 // RLIMIT_NOFILE
	MaxFileSizeBytes uint64 // RLIMIT_FSIZE
	MaxCPUSeconds    uint64 // RLIMIT_CPU
	MaxAddressSpace  uint64 // RLIMIT_AS, bytes
}

// IsZero reports whether no limit is set.
func (l ResourceLimits) IsZero() bool {
	return l == ResourceLimits{}
}

// Policy is the configuration bundle for a Context. It is copied when the
// Context is built; later changes to the caller's value have no effect.
type Policy struct {
	// WorkspaceRoot is the directory all file and command access is confined to.
	WorkspaceRoot string

	// DisallowedPathPatterns are regular expressions matched against
	// workspace-relative slash paths.
	DisallowedPathPatterns []string

	// DisallowedCommands are program names (glob syntax, basename only).
	DisallowedCommands []string

	// DisallowedCommandPatterns are regular expressions matched against each
	// normalized stage.
	DisallowedCommandPatterns []string

	// ProtectedEnvPatterns are case-insensitive name substrings.
	ProtectedEnvPatterns []string

	// ProtectedEnvNames are exact names (case-insensitive), typically loaded
	// with LoadProtectedNames.
	ProtectedEnvNames []string

	// MaxOutputSize caps each captured stream, in characters.
	MaxOutputSize int

	DefaultTimeout   time.Duration
	MaxTimeout       time.Duration
	MaxCommandLength int

	// ShellDecomposition allows raw shell strings that split cleanly into
	// argument-vector stages. When false every Shell spec is rejected.
	ShellDecomposition bool

	// LogRejectionDetail logs which rule rejected a request. The caller only
	// ever sees the generic message.
	LogRejectionDetail bool

	Limits ResourceLimits
}

// DefaultPolicy returns the default policy for root.
func DefaultPolicy(root string) Policy {
	return Policy{
		WorkspaceRoot:             root,
		DisallowedPathPatterns:    append([]string(nil), DefaultDisallowedPathPatterns...),
		DisallowedCommands:        append([]string(nil), DefaultDisallowedCommands...),
		DisallowedCommandPatterns: append([]string(nil), DefaultDisallowedCommandPatterns...),
		ProtectedEnvPatterns:      append([]string(nil), DefaultProtectedEnvPatterns...),
		MaxOutputSize:             DefaultMaxOutputSize,
		DefaultTimeout:            DefaultCommandTimeout,
		MaxTimeout:                DefaultMaxCommandTimeout,
		MaxCommandLength:          DefaultMaxCommandLength,
		ShellDecomposition:        true,
		LogRejectionDetail:        true,
	}
}

// clone deep-copies the slices so the Context owns its policy exclusively.
func (p Policy) clone() Policy {
	c := p
	c.DisallowedPathPatterns = append([]string(nil), p.DisallowedPathPatterns...)
	c.DisallowedCommands = append([]string(nil), p.DisallowedCommands...)
	c.DisallowedCommandPatterns = append([]string(nil), p.DisallowedCommandPatterns...)
	c.ProtectedEnvPatterns = append([]string(nil), p.ProtectedEnvPatterns...)
	c.ProtectedEnvNames = append([]string(nil), p.ProtectedEnvNames...)
	return c
}

// LoadProtectedNames reads protected environment variable names from path,
// one per line. Blank lines and lines starting with '#' are ignored, and a
// trailing "=value" is dropped so env-file syntax works too.
func LoadProtectedNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open protected names file: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		if idx := strings.IndexByte(line, '='); idx >= 0 {
			line = line[:idx]
		}
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read protected names file: %w", err)
	}
	return names, nil
}
