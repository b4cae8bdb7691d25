package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/model"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/scoring"
)

// scoreOutput adds the model version the HTTP result leaves out
type scoreOutput struct {
	scoring.ScoreResult
	ModelVersion string `json:"model_version,omitempty"`
}

func newScoreCmd() *cobra.Command {
	var (
		input     string
		policy    string
		modelPath string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one or more feature sets",
		Long: "Reads a feature set (or a list of them) from a JSON or YAML file and\n" +
			"prints the score, band and top drivers. Absent features take their\n" +
			"neutral defaults.",
		Example: "  fcs score --input farmer.yaml\n" +
			"  fcs score --input batch.json --model model.json --policy prefer_model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			samples, single, err := readFeatures(input, cmd.InOrStdin())
			if err != nil {
				return err
			}

			p, err := resolvePolicy(policy, modelPath)
			if err != nil {
				return err
			}

			svc := scoring.NewService(
				scoring.NewModelAdapter(scoring.NewModelHandle(model.NewLoader(modelPath))),
				scoring.WithLogger(slog.Default()),
			)

			out := make([]scoreOutput, len(samples))
			for i, raw := range samples {
				r := svc.Compute(raw, p)
				out[i] = scoreOutput{ScoreResult: r, ModelVersion: r.ModelVersion}
			}

			if single {
				return writeJSON(cmd.OutOrStdout(), out[0])
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Feature file (.json, .yaml) or - for JSON on stdin (required)")
	cmd.Flags().StringVar(&policy, "policy", "", "deterministic_only or prefer_model (default: prefer_model when --model is set)")
	cmd.Flags().StringVar(&modelPath, "model", "", "Learned model artifact")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func resolvePolicy(policy, modelPath string) (scoring.Policy, error) {
	if policy != "" {
		return scoring.ParsePolicy(policy)
	}
	if modelPath != "" {
		return scoring.PolicyPreferModel, nil
	}
	return scoring.PolicyDeterministicOnly, nil
}
