package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"autobill/internal/logger"
	"autobill/internal/payments"
	"autobill/internal/sheets"
)

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Payment commands",
}

var paymentsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Book incoming bank transfers from a statement sheet",
	Long: `Read a bank statement worksheet from Google Sheets and record a payment for
every incoming transfer whose remittance text names an invoice number
(INV-YYYYMMDD-NNNN).

Expected columns: A=Datum, B=Transaktionstyp, C=Beschreibung, D=EREF, E=MREF,
F=CRED, G=SVWZ, H=Empfänger/Absender, I=BIC, J=IBAN, K=Betrag.

Transfers are identified by their EREF, so importing the same statement again
does not book a payment twice.`,
	Example: `  # Import from the sheet configured in PAYMENTS_SHEET_URL
  autobill payments import

  # Import a specific sheet and worksheet
  autobill payments import --sheet-url "https://docs.google.com/spreadsheets/d/abc/edit" --worksheet Maerz -o import.json`,
	RunE: runPaymentsImport,
}

func init() {
	rootCmd.AddCommand(paymentsCmd)
	paymentsCmd.AddCommand(paymentsImportCmd)

	paymentsImportCmd.Flags().String("sheet-url", "", "Statement spreadsheet URL (default: PAYMENTS_SHEET_URL)")
	paymentsImportCmd.Flags().String("worksheet", "", "Statement worksheet name (default: PAYMENTS_WORKSHEET)")
	paymentsImportCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
}

func runPaymentsImport(cmd *cobra.Command, args []string) error {
	log := logger.WithJob("cmd", "payments-import")

	sheetURL, _ := cmd.Flags().GetString("sheet-url")
	worksheet, _ := cmd.Flags().GetString("worksheet")
	outputPath, _ := cmd.Flags().GetString("output")

	ctx, cancel := signalContext(log)
	defer cancel()

	app, err := newApplication(ctx, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if sheetURL == "" {
		sheetURL = app.cfg.PaymentsSheetURL
	}
	if worksheet == "" {
		worksheet = app.cfg.PaymentsWorksheet
	}
	if sheetURL == "" {
		return fmt.Errorf("no statement sheet: pass --sheet-url or set PAYMENTS_SHEET_URL")
	}

	sheetsService, err := sheets.NewSheetsService(ctx, sheetURL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create Google Sheets service")
		return fmt.Errorf("failed to create sheets service: %w", err)
	}

	log.Info().Str("worksheet", worksheet).Msg("Importing bank statement")

	importer := payments.NewImporter(sheetsService, app.store, app.actions)
	summary, err := importer.Import(ctx, worksheet)
	if err != nil {
		return fmt.Errorf("payment import failed: %w", err)
	}
	return writeJSON(summary, outputPath, log)
}
