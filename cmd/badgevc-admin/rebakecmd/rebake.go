/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rebakecmd

import (
	"github.com/spf13/cobra"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/badgevc/pkg/badge"
	"github.com/trustbloc/badgevc/pkg/models"
	"github.com/trustbloc/badgevc/pkg/store"
	cmdutils "github.com/trustbloc/badgevc/pkg/utils/cmd"
)

const (
	databaseTypeFlagName      = "database-type"
	databaseTypeEnvKey        = "BADGEVC_DATABASE_TYPE"
	databaseTypeFlagShorthand = "t"
	databaseTypeFlagUsage     = "The type of database backing the issuer and assertion stores." +
		" Supported options: mem, mongodb." +
		" Alternatively, this can be set with the following environment variable: " + databaseTypeEnvKey

	databaseURLFlagName      = "database-url"
	databaseURLEnvKey        = "BADGEVC_DATABASE_URL"
	databaseURLFlagShorthand = "l"
	databaseURLFlagUsage     = "The URL of the database. Not needed if using memstore." +
		" Alternatively, this can be set with the following environment variable: " + databaseURLEnvKey

	keyPassphraseFlagName      = "key-passphrase"
	keyPassphraseEnvKey        = "BADGEVC_KEY_PASSPHRASE" //nolint: gosec
	keyPassphraseFlagShorthand = "k"
	keyPassphraseFlagUsage     = "Passphrase protecting issuer private-key PEMs at rest. Leave unset if" +
		" keys are stored unencrypted." +
		" Alternatively, this can be set with the following environment variable: " + keyPassphraseEnvKey

	logLevelFlagName      = "log-level"
	logLevelEnvKey        = "BADGEVC_LOG_LEVEL"
	logLevelFlagShorthand = "g"
	logLevelFlagUsage     = "Logging level. Supported options: critical, error, warning, info, debug." +
		" Defaults to info." +
		" Alternatively, this can be set with the following environment variable: " + logLevelEnvKey
)

var logger = log.New("badgevc-admin")

// GetRebakeCmd returns the Cobra rebake command.
func GetRebakeCmd() *cobra.Command {
	rebakeCmd := &cobra.Command{
		Use:   "rebake [assertionID ...]",
		Short: "Re-sign badge assertions",
		Long: "Re-sign the given badge assertions using each issuer's current key material." +
			" Per-assertion failures are reported and do not abort the batch.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService(cmd)
			if err != nil {
				return err
			}

			report, err := service.RebakeAssertions(args)
			if err != nil {
				return err
			}

			logReport(report)

			return nil
		},
	}

	createFlags(rebakeCmd)

	return rebakeCmd
}

// GetRecalculateKeysCmd returns the Cobra recalculate-keys command.
func GetRecalculateKeysCmd() *cobra.Command {
	recalculateCmd := &cobra.Command{
		Use:   "recalculate-keys",
		Short: "Rotate duplicate issuer keys",
		Long: "Detect issuers sharing private key material, rotate each affected issuer's key," +
			" and re-sign every previously signed assertion under those issuers.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newService(cmd)
			if err != nil {
				return err
			}

			report, err := service.RecalculateDuplicateKeys()
			if err != nil {
				return err
			}

			logReport(report)

			return nil
		},
	}

	createFlags(recalculateCmd)

	return recalculateCmd
}

func createFlags(cmd *cobra.Command) {
	cmd.Flags().StringP(databaseTypeFlagName, databaseTypeFlagShorthand, "", databaseTypeFlagUsage)
	cmd.Flags().StringP(databaseURLFlagName, databaseURLFlagShorthand, "", databaseURLFlagUsage)
	cmd.Flags().StringP(keyPassphraseFlagName, keyPassphraseFlagShorthand, "", keyPassphraseFlagUsage)
	cmd.Flags().StringP(logLevelFlagName, logLevelFlagShorthand, "", logLevelFlagUsage)
}

func newService(cmd *cobra.Command) (*badge.Service, error) {
	logLevel, err := cmdutils.GetUserSetVar(cmd, logLevelFlagName, logLevelEnvKey, true)
	if err != nil {
		return nil, err
	}

	setLogLevel(logLevel)

	databaseType, err := cmdutils.GetUserSetVar(cmd, databaseTypeFlagName, databaseTypeEnvKey, false)
	if err != nil {
		return nil, err
	}

	databaseURL, err := cmdutils.GetUserSetVar(cmd, databaseURLFlagName, databaseURLEnvKey, true)
	if err != nil {
		return nil, err
	}

	keyPassphrase, err := cmdutils.GetUserSetVar(cmd, keyPassphraseFlagName, keyPassphraseEnvKey, true)
	if err != nil {
		return nil, err
	}

	provider, err := store.NewProvider(databaseType, databaseURL)
	if err != nil {
		return nil, err
	}

	return badge.New(&badge.Config{
		StorageProvider: provider,
		KeyPassphrase:   keyPassphrase,
	})
}

func setLogLevel(userLogLevel string) {
	if userLogLevel == "" {
		userLogLevel = "info"
	}

	logLevel, err := log.ParseLevel(userLogLevel)
	if err != nil {
		logger.Warnf("%s is not a valid logging level. It must be one of the following: "+
			"critical, error, warning, info, debug. Defaulting to info.", userLogLevel)

		logLevel = log.INFO
	}

	log.SetLevel("", logLevel)
}

func logReport(report *models.RebakeReport) {
	logger.Infof("rebake complete: %d processed, %d changed, %d unchanged, %d without a prior proof, %d failed",
		report.Total(), report.Changed, report.Unchanged, report.NoPriorProof, len(report.Failed))

	for i := range report.Failed {
		logger.Errorf("assertion %s: %s", report.Failed[i].ID, report.Failed[i].Error)
	}
}
