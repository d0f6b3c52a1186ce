// Package propindex maintains a live index of the configuration properties
// declared in a project's resources, for editor tooling such as completion,
// hover and validation of externalized settings.
//
// # Philosophy: Cheap Invalidation, Lazy Rebuild
//
// An index is never rebuilt because something changed; it is rebuilt because
// somebody asked for it after something changed. Change notifications only
// flip a project's cache entry to stale, which costs one atomic increment.
// The next query for that project pays for exactly one rebuild, shared by all
// concurrent readers.
//
// # Architecture Overview
//
// propindex consists of five cooperating parts:
//  1. **Source Parsers**: .properties, YAML and optionally JSON and TOML
//     resources are turned into PropertyEntry values with source locations
//  2. **Resource Locator**: enumerates application[-profile].{properties,yml,yaml}
//     under each source root, in root priority order
//  3. **Index Builder**: reads and parses the located resources into an
//     immutable Snapshot, sorted by property id
//  4. **Change Feeds**: a ClasspathFeed for source-root changes and a FileFeed
//     for resource content changes, with reliable ordered delivery
//  5. **Index Cache and Provider**: Absent, Valid and Stale entries per
//     project behind a single GetIndex(document) query
//
// # Quick Start
//
//	ws := propindex.NewWorkspace()
//	if err := ws.AddProject("api", "/src/api", "/src/api/src/main/resources"); err != nil {
//		log.Fatal(err)
//	}
//
//	provider, err := propindex.NewLiveProvider(ws, propindex.Config{
//		Profiles:  []string{"dev"},
//		FileWatch: propindex.FileWatchNotify,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer provider.Close()
//
//	snap := provider.GetIndex(propindex.DocumentURI("/src/api/src/main/java/App.java"))
//	for _, e := range snap.WithPrefix("server.") {
//		fmt.Printf("%s = %s (%s)\n", e.ID, e.Value, e.Location)
//	}
//
// # Bringing Your Own Feeds
//
// Hosts that already know about project structure and file changes (an LSP
// server, a build tool daemon) can skip Workspace and LiveProvider and drive
// the cache directly:
//
//	classpath := propindex.NewClasspathFeed()
//	files := propindex.NewFileFeed()
//	provider, err := propindex.New(myResolver, propindex.Feeds{Classpath: classpath, Files: files}, cfg)
//
//	// later, from the host's own notifications
//	files.Publish(propindex.FileEvent{Path: changed, Kind: propindex.FileModified})
//
// Publishing blocks until every subscriber has buffered the event, and a
// query waits until every event published before it has been applied, so
// GetIndex never returns a snapshot that predates a change the caller has
// already published.
//
// Without a file feed every query rebuilds. Without a classpath feed the
// cache compares the root list returned by the resolver with the one the
// snapshot was built from.
//
// # Property Ids
//
// Keys of .properties resources are used verbatim. Hierarchical formats are
// flattened: mapping keys are joined with dots, sequence elements become
// [i] suffixes, and scalar leaves are the entries:
//
//	server:
//	  port: 8080          -> server.port
//	  hosts: [a, b]       -> server.hosts[0], server.hosts[1]
//
// A resource that cannot be parsed contributes no entries and produces a
// warning through Config.ErrorHandler; the rest of the index is unaffected.
// Entries with the same id from different resources are all kept, in
// resource priority order, so shadowed declarations remain navigable.
//
// # Watching Files
//
// LiveProvider watches every candidate resource path, existing or not, so
// creating application-dev.yml in a root is noticed. Two strategies exist:
//
//   - FileWatchPoll stats the candidates every PollInterval, with a stat
//     cache of CacheTTL shared by all paths
//   - FileWatchNotify relies on fsnotify and watches the nearest existing
//     ancestor directory of each candidate
//
// # Configuration
//
// Config can be built in code, loaded from a JSON, YAML or TOML file with
// LoadConfigFile, read from PROPINDEX_* environment variables with
// LoadConfigFromEnv, or bound to command line flags with ConfigFlags.
// LoadConfigMultiSource layers a file under the environment.
//
// # Audit Trail
//
// With Config.Audit.Enabled, index builds, invalidations, project removals and
// rejected paths are recorded in a SQLite database (or a JSONL file when the
// output path ends in .jsonl) for later inspection with the propindex CLI.
//
// # Plugin Architecture
//
// Custom parsers replace or extend the built-in ones:
//
//	propindex.RegisterParser(&strictYAMLParser{})
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package propindex
