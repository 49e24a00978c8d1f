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


// Command pickplace runs the pick&place controller with its event loop,
// operator API and metrics endpoint, and offers offline access to the
// persisted error log.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/united-manufacturing-hub/pickplace-core/pkg/sentry"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = sentry.DefaultAppVersion

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pickplace",
		Short:         "Pick&place cell controller",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration")

	root.AddCommand(newRunCmd())
	root.AddCommand(newErrorsCmd())
	return root
}
