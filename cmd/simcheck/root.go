package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/simcheck/simcheck/internal/phone"
)

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "simcheck",
		Short: "Verify phone number possession over the mobile network",
		Long: `simcheck asks the provider, directly or through the broker, to create a
subscriber check, opens the check URL over the cellular interface and exchanges
the returned code for the verification result.

  simcheck verify --dial-code +44 --phone "07700 900000" --interface wwan0`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().Bool("json", false, "Output in JSON format")

	root.AddCommand(newNormalizeCmd())
	root.AddCommand(newCodesCmd())
	root.AddCommand(newVerifyCmd())
	return root
}

func newNormalizeCmd() *cobra.Command {
	var dialCode string
	cmd := &cobra.Command{
		Use:   "normalize <number>",
		Short: "Print the canonical form of a typed phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			canonical := phone.Normalize(dialCode, args[0])
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"canonical": canonical,
					"e164":      phone.E164(canonical),
					"valid":     phone.Validate(canonical) == nil,
					"country":   phone.Country(canonical),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), canonical)
			return nil
		},
	}
	cmd.Flags().StringVar(&dialCode, "dial-code", "", `Dial code to prefix, for example "+44"`)
	_ = cmd.MarkFlagRequired("dial-code")
	return cmd
}

func newCodesCmd() *cobra.Command {
	var popular bool
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "List supported calling codes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			codes := phone.CallingCodes()
			if popular {
				codes = phone.Popular()
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), codes)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COUNTRY\tCODE\tREGION")
			for _, c := range codes {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Alpha3, c.DialCode, c.Region)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&popular, "popular", false, "Only list the popular subset")
	return cmd
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
