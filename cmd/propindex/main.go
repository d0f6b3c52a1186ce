// propindex: command line entry point
//
// Global flags come first and configure the index; the command follows:
//
//	propindex --profiles dev --formats properties,yaml list ./my-service
//	propindex --audit --audit-file /tmp/propindex.db watch ./my-service --notify
//	propindex conditions report.json DataSourceAutoConfiguration --annotation ConditionalOnClass
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/agilira/propindex"
	"github.com/agilira/propindex/cmd/cli"
	internalcli "github.com/agilira/propindex/internal/cli"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global, rest := internalcli.SplitGlobalArgs(args, cli.Commands())

	flags := propindex.NewConfigFlags("propindex").
		SetDescription("Live property index over .properties and YAML configuration resources").
		SetVersion(cli.Version)
	if err := flags.Parse(global); err != nil {
		if err == propindex.ErrHelpRequested {
			flags.PrintUsage()
			return cli.NewManager().Run([]string{"--help"})
		}
		return err
	}

	config, err := flags.Config()
	if err != nil {
		return err
	}

	manager := cli.NewManager().WithConfig(*config)
	if config.Audit.Enabled {
		auditLogger, err := propindex.NewAuditLogger(config.Audit)
		if err != nil {
			return err
		}
		defer func() { _ = auditLogger.Close() }()
		manager.WithAudit(auditLogger)
	}

	return manager.Run(rest)
}
