// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package executor runs validated commands for the agent.
//
// Every command passes security.Context.CheckCommandSecurity before a process
// is created. Commands are spawned from argument vectors; no shell is ever
// involved. Each stage runs in its own process group with a sanitized
// environment and the workspace root as its working directory.
//
// # Pipelines
//
// ExecutePiped validates every stage before starting any of them, joins the
// stages with OS pipes and runs them concurrently. Only the final stage's
// stdout is exposed. If any stage exits non-zero the result reports the first
// failing stage and its stderr.
//
// # Cleanup
//
// On timeout the whole process group receives SIGKILL. The group is also
// killed after the leader exits, so background children never outlive the
// call. Pipes and file descriptors are closed on every path.
//
// # Usage
//
//	exec := executor.New(secCtx, logger)
//	res, err := exec.Execute(ctx, security.Argv("go", "test", "./..."), time.Minute)
//	if err != nil {
//	    // res is still populated; res.ErrorKind classifies err
//	}
package executor
