/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/trustbloc/badgevc/cmd/badgevc-admin/rebakecmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use: "badgevc-admin",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.AddCommand(rebakecmd.GetRebakeCmd())
	rootCmd.AddCommand(rebakecmd.GetRecalculateKeysCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to run badgevc-admin: %s", err.Error())
	}
}
