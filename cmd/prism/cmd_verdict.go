package main

import (
	"os"

	"github.com/spf13/cobra"
)

var verdictCmd = &cobra.Command{
	Use:   "verdict",
	Short: "Record external verification verdicts",
}

var verdictSaveFlags struct {
	confidence  float64
	payload     string
	payloadFile string
}

var verdictSaveCmd = &cobra.Command{
	Use:   "save <function-id>",
	Short: "Save a confidence verdict; >= threshold verifies, below sends to review",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerdictSave,
}

var verdictFailCmd = &cobra.Command{
	Use:   "fail <function-id>",
	Short: "Mark an artifact BROKEN after its verdict failed downstream verification",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerdictFail,
}

func init() {
	f := verdictSaveCmd.Flags()
	f.Float64VarP(&verdictSaveFlags.confidence, "confidence", "c", 0, "Confidence score in [0,1] (required)")
	f.StringVar(&verdictSaveFlags.payload, "payload", "", "Opaque JSON object stored with the verdict")
	f.StringVarP(&verdictSaveFlags.payloadFile, "payload-file", "f", "", "Read the payload from a file instead")
	_ = verdictSaveCmd.MarkFlagRequired("confidence")

	verdictCmd.AddCommand(verdictSaveCmd)
	verdictCmd.AddCommand(verdictFailCmd)
}

func runVerdictSave(cmd *cobra.Command, args []string) error {
	payload := verdictSaveFlags.payload
	if verdictSaveFlags.payloadFile != "" {
		data, err := os.ReadFile(verdictSaveFlags.payloadFile)
		if err != nil {
			return emit(cmd, nil, err)
		}
		payload = string(data)
	}

	st, eng, err := openEngine()
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	out, err := eng.SaveVerdict(args[0], verdictSaveFlags.confidence, payload)
	return emit(cmd, out, err)
}

func runVerdictFail(cmd *cobra.Command, args []string) error {
	st, eng, err := openEngine()
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	a, err := eng.FailVerification(args[0])
	return emit(cmd, a, err)
}
