package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/model"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect, evaluate and export learned model artifacts",
	}

	cmd.AddCommand(newModelInspectCmd())
	cmd.AddCommand(newModelEvaluateCmd())
	cmd.AddCommand(newModelReferenceCmd())
	return cmd
}

func newModelInspectCmd() *cobra.Command {
	var modelPath string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Validate an artifact and print its shape",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(modelPath)
			if err != nil {
				return fmt.Errorf("read model: %w", err)
			}
			artifact, err := model.Decode(modelPath, data)
			if err != nil {
				return err
			}
			if err := artifact.Validate(); err != nil {
				return fmt.Errorf("invalid model: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Kind:     %s\n", artifact.Kind)
			fmt.Fprintf(out, "Version:  %s\n", artifact.Version)
			fmt.Fprintf(out, "Features: %d\n", len(artifact.FeatureNames))
			if artifact.Kind == model.KindForest {
				nodes := 0
				for _, t := range artifact.Trees {
					nodes += len(t.Nodes)
				}
				fmt.Fprintf(out, "Trees:    %d (%d nodes)\n", len(artifact.Trees), nodes)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Model artifact (required)")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newModelEvaluateCmd() *cobra.Command {
	var modelPath, samplesPath string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Compare a learned model with the deterministic scorer",
		Long: "Scores every sample with both the learned model and the deterministic\n" +
			"scorer and reports the error of the model on the 0-100 scale.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := model.Load(modelPath)
			if err != nil {
				return err
			}
			samples, _, err := readFeatures(samplesPath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			eval, err := model.Evaluate(m, samples)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), eval)
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Model artifact (required)")
	cmd.Flags().StringVar(&samplesPath, "samples", "", "Feature file with one or more samples (required)")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("samples")
	return cmd
}

func newModelReferenceCmd() *cobra.Command {
	var outPath, modelVersion string

	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Write the linear artifact equivalent to the deterministic scorer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := model.Save(outPath, model.ReferenceArtifact(modelVersion)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Destination path (required)")
	cmd.Flags().StringVar(&modelVersion, "artifact-version", "reference-1", "Version recorded in the artifact")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
