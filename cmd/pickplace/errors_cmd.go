// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/config"
	"github.com/united-manufacturing-hub/pickplace-core/pkg/persistence"
)

// newErrorsCmd works on the store directly and is meant for a stopped
// controller. A running one is cleared through the operator API, since it
// keeps its own copy of the log.
func newErrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Inspect or clear the persisted error log",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the persisted error log as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			return store.Export(cmd.Context(), cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every record from the persisted error log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d record(s)\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export <file>",
		Short: "Write the persisted error log to a file, zstd-compressed for a .zst name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := exportTo(cmd, store, f, strings.HasSuffix(args[0], ".zst")); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	})

	return cmd
}

func exportTo(cmd *cobra.Command, store *persistence.ErrorLogStore, w io.Writer, compress bool) error {
	if !compress {
		return store.Export(cmd.Context(), w)
	}

	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	if err := store.Export(cmd.Context(), encoder); err != nil {
		_ = encoder.Close()
		return err
	}
	return encoder.Close()
}

func openStore(cmd *cobra.Command) (*persistence.ErrorLogStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.DBPath == "" {
		return nil, errors.New("no storage.dbPath configured")
	}
	return persistence.Open(cmd.Context(), cfg.Storage.DBPath)
}
